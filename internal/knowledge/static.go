package knowledge

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const defaultMaxResults = 3

// StaticProvider 在固定条目中做关键字匹配。命中关键字越多排名越靠前，
// 通用条目排在所有命中条目之后。
type StaticProvider struct {
	items      []indexedSnippet
	maxResults int
}

type indexedSnippet struct {
	Snippet
	needles []string
}

// NewStaticProvider 创建静态知识库，maxResults 非正数时为 3。
func NewStaticProvider(items []Snippet, maxResults int) *StaticProvider {
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	p := &StaticProvider{maxResults: maxResults, items: make([]indexedSnippet, 0, len(items))}
	for _, item := range items {
		var needles []string
		for _, term := range item.terms() {
			if term = strings.ToLower(strings.TrimSpace(term)); term != "" {
				needles = append(needles, term)
			}
		}
		p.items = append(p.items, indexedSnippet{Snippet: item, needles: needles})
	}
	return p
}

// NewDefaultProvider 返回内置的 WAX 常识条目。
func NewDefaultProvider(maxResults int) *StaticProvider {
	return NewStaticProvider(DefaultSnippets(), maxResults)
}

// LoadStaticProvider 从 JSON 或 YAML（.yaml/.yml）文件加载条目。缺少 title 或 content 的条目视为错误。
func LoadStaticProvider(path string, maxResults int) (*StaticProvider, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("知识库文件路径不能为空")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取知识库文件失败: %w", err)
	}

	var entries []Snippet
	if ext := strings.ToLower(filepath.Ext(path)); ext == ".yaml" || ext == ".yml" {
		err = yaml.Unmarshal(data, &entries)
	} else {
		err = json.Unmarshal(data, &entries)
	}
	if err != nil {
		return nil, fmt.Errorf("解析知识库文件 %s 失败: %w", path, err)
	}
	for i, entry := range entries {
		if strings.TrimSpace(entry.Title) == "" || strings.TrimSpace(entry.Content) == "" {
			return nil, fmt.Errorf("知识库第 %d 条缺少 title 或 content", i+1)
		}
	}
	return NewStaticProvider(entries, maxResults), nil
}

// Query 返回最多 maxResults 条相关片段；空提示词返回 nil。
func (p *StaticProvider) Query(prompt string) []Snippet {
	if p == nil {
		return nil
	}
	prompt = strings.ToLower(strings.TrimSpace(prompt))
	if prompt == "" {
		return nil
	}

	type hit struct {
		index int
		score int
	}
	var hits []hit
	for i, item := range p.items {
		if len(item.needles) == 0 {
			hits = append(hits, hit{index: i})
			continue
		}
		score := 0
		for _, term := range item.needles {
			if strings.Contains(prompt, term) {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, hit{index: i, score: score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	if len(hits) > p.maxResults {
		hits = hits[:p.maxResults]
	}
	results := make([]Snippet, 0, len(hits))
	for _, h := range hits {
		results = append(results, p.items[h.index].Snippet)
	}
	return results
}

var _ Provider = (*StaticProvider)(nil)
