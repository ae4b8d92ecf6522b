package source

import (
	"fmt"

	"github.com/clbanning/mxj/v2"
	"github.com/smallbiznis/catalogsync/internal/config"
)

// TreeAdapter reads XML feeds where products sit at a fixed element path.
type TreeAdapter struct {
	recordPath []string
}

func NewTreeAdapter(cfg config.TreeConfig) *TreeAdapter {
	path := make([]string, 0, len(cfg.RecordPath))
	for _, seg := range cfg.RecordPath {
		path = append(path, SplitPath(seg)...)
	}
	return &TreeAdapter{recordPath: path}
}

func (a *TreeAdapter) Parse(payload []byte) (ParseResult, error) {
	doc, err := mxj.NewMapXml(payload)
	if err != nil {
		return ParseResult{}, fmt.Errorf("decode xml: %w", err)
	}

	items := List(map[string]any(doc), a.recordPath...)
	res := ParseResult{Records: make([]RawRecord, 0, len(items))}
	for _, item := range items {
		m, ok := asMap(item)
		if !ok {
			res.Skipped++
			continue
		}
		res.Records = append(res.Records, RawRecord(m))
	}
	return res, nil
}
