package main

import (
	"fmt"
	"os"
	"strings"
)

// Path locates a data source: a snapshot file or a mongo collection.
type Path struct {
	File string
	DB   string
	Coll string
}

// NewPath parses {fspath} or {db}.{col}. An empty string returns nil.
func NewPath(filePathOrColl string) (*Path, error) {
	// 检查filePathOrColl是否作为文件存在
	if _, err := os.Stat(filePathOrColl); err == nil {
		return &Path{
			File: filePathOrColl,
		}, nil
	}
	dbDotColl := strings.TrimSpace(filePathOrColl)
	if dbDotColl == "" {
		return nil, nil
	}
	splitted := strings.Split(dbDotColl, ".")
	if len(splitted) != 2 || splitted[0] == "" || splitted[1] == "" {
		return nil, fmt.Errorf("neither a file nor {db}.{col}: %s", dbDotColl)
	}
	return &Path{
		DB:   splitted[0],
		Coll: splitted[1],
	}, nil
}

func (p *Path) IsFile() bool {
	return p.File != ""
}

func (p *Path) String() string {
	if p.IsFile() {
		return p.File
	}
	return p.DB + "." + p.Coll
}
