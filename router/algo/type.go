package algo

// WalkNodeAttr 步行图结点属性
type WalkNodeAttr struct {
	OSMID int64 // 对应的OSM node id
}

// WalkEdgeAttr 步行图边属性，正反两个方向共享同一个Segment
type WalkEdgeAttr struct {
	Segment   int // 路段下标
	Direction int // FORWARD or BACKWARD
}
