// Package knowledge 为智能体提供按提示词检索的 WAX 背景知识。
package knowledge

// Provider 根据提示词返回相关的知识片段。
type Provider interface {
	Query(prompt string) []Snippet
}

// Snippet 是一段可以拼进系统提示词的知识。没有 Keywords 和 Tags 的片段视为通用知识。
type Snippet struct {
	Title    string   `json:"title" yaml:"title"`
	Content  string   `json:"content" yaml:"content"`
	Keywords []string `json:"keywords" yaml:"keywords"`
	Tags     []string `json:"tags" yaml:"tags"`
}

func (s Snippet) terms() []string {
	return append(append(make([]string, 0, len(s.Keywords)+len(s.Tags)), s.Keywords...), s.Tags...)
}
