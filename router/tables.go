package router

const (
	HIGHWAY_UNCLASSIFIED = "unclassified"

	LIT_YES     = "yes"
	LIT_NO      = "no"
	LIT_UNKNOWN = "unknown"

	SURFACE_PAVED   = "paved"
	SURFACE_UNPAVED = "unpaved"
	SURFACE_UNKNOWN = "unknown"

	// 推断亮灯概率不低于该值时按亮灯道路计入
	LIT_INFERRED_THRESHOLD = 0.5
)

// 道路等级得分，缺省按unclassified处理
var ROAD_TYPE_SCORE = map[string]float64{
	"primary":        1.0,
	"primary_link":   1.0,
	"secondary":      1.0,
	"secondary_link": 1.0,
	"tertiary":       1.0,
	"tertiary_link":  1.0,
	"residential":    1.0,
	"living_street":  1.0,
	"pedestrian":     0.9,
	"unclassified":   0.6,
	"road":           0.6,
	"service":        0.5,
	"footway":        0.4,
	"cycleway":       0.4,
	"bridleway":      0.3,
	"path":           0.3,
	"track":          0.2,
	"steps":          0.2,
	"motorway":       0.1,
	"motorway_link":  0.1,
	"trunk":          0.3,
	"trunk_link":     0.3,
}

// 无lit标签时按道路等级推断的亮灯概率
var LIGHTING_LIKELIHOOD = map[string]float64{
	"motorway":       0.9,
	"motorway_link":  0.9,
	"trunk":          0.95,
	"trunk_link":     0.95,
	"primary":        0.95,
	"primary_link":   0.95,
	"secondary":      0.9,
	"secondary_link": 0.9,
	"tertiary":       0.8,
	"tertiary_link":  0.8,
	"residential":    0.7,
	"living_street":  0.7,
	"pedestrian":     0.7,
	"unclassified":   0.4,
	"road":           0.4,
	"service":        0.4,
	"cycleway":       0.3,
	"footway":        0.2,
	"bridleway":      0.1,
	"path":           0.1,
	"track":          0.05,
	"steps":          0.1,
}

// 不可步行的道路等级，除非显式允许步行
var MOTOR_ONLY = map[string]bool{
	"motorway":      true,
	"motorway_link": true,
	"trunk":         true,
	"trunk_link":    true,
}

// 完全不可通行的等级
var NOT_TRAVERSABLE = map[string]bool{
	"construction": true,
	"proposed":     true,
	"abandoned":    true,
	"raceway":      true,
	"bus_guideway": true,
	"platform":     true,
}

var LIT_VALUES = map[string]string{
	"yes":            LIT_YES,
	"24/7":           LIT_YES,
	"automatic":      LIT_YES,
	"limited":        LIT_YES,
	"interval":       LIT_YES,
	"sunset-sunrise": LIT_YES,
	"no":             LIT_NO,
	"disused":        LIT_NO,
}

var SURFACE_VALUES = map[string]string{
	"paved":           SURFACE_PAVED,
	"asphalt":         SURFACE_PAVED,
	"concrete":        SURFACE_PAVED,
	"concrete:plates": SURFACE_PAVED,
	"concrete:lanes":  SURFACE_PAVED,
	"paving_stones":   SURFACE_PAVED,
	"sett":            SURFACE_PAVED,
	"cobblestone":     SURFACE_PAVED,
	"metal":           SURFACE_PAVED,
	"wood":            SURFACE_PAVED,
	"unpaved":         SURFACE_UNPAVED,
	"compacted":       SURFACE_UNPAVED,
	"fine_gravel":     SURFACE_UNPAVED,
	"gravel":          SURFACE_UNPAVED,
	"pebblestone":     SURFACE_UNPAVED,
	"ground":          SURFACE_UNPAVED,
	"dirt":            SURFACE_UNPAVED,
	"earth":           SURFACE_UNPAVED,
	"grass":           SURFACE_UNPAVED,
	"mud":             SURFACE_UNPAVED,
	"sand":            SURFACE_UNPAVED,
	"woodchips":       SURFACE_UNPAVED,
}

// 视为带人行道的sidewalk标签值
var SIDEWALK_VALUES = map[string]bool{
	"both":     true,
	"left":     true,
	"right":    true,
	"yes":      true,
	"separate": true,
}

// 本身即为步行设施的道路等级
var PEDESTRIAN_HIGHWAYS = map[string]bool{
	"footway":       true,
	"pedestrian":    true,
	"living_street": true,
	"steps":         true,
}

// ScoreLabel maps a composite score band to a label and display color.
type ScoreLabel struct {
	Min   int
	Label string
	Color string
}

// 按Min降序排列
var SCORE_LABELS = []ScoreLabel{
	{Min: 70, Label: "Very Safe", Color: "#2E7D32"},
	{Min: 60, Label: "Safe", Color: "#7CB342"},
	{Min: 40, Label: "Moderate", Color: "#F9A825"},
	{Min: 0, Label: "Use Caution", Color: "#C62828"},
}

var INSUFFICIENT_DATA = ScoreLabel{Label: "Insufficient Data", Color: "#9E9E9E"}

// Label returns the band of a composite score; below the confidence floor the
// score is not trusted and INSUFFICIENT_DATA is returned.
func Label(composite int, confidence, floor float64) ScoreLabel {
	if confidence < floor {
		return INSUFFICIENT_DATA
	}
	for _, l := range SCORE_LABELS {
		if composite >= l.Min {
			return l
		}
	}
	return SCORE_LABELS[len(SCORE_LABELS)-1]
}

func roadTypeScore(highway string) float64 {
	if s, ok := ROAD_TYPE_SCORE[highway]; ok {
		return s
	}
	return ROAD_TYPE_SCORE[HIGHWAY_UNCLASSIFIED]
}

func lightingLikelihood(highway string) float64 {
	if s, ok := LIGHTING_LIKELIHOOD[highway]; ok {
		return s
	}
	return LIGHTING_LIKELIHOOD[HIGHWAY_UNCLASSIFIED]
}
