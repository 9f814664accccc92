// Package research 定义报告撰写协作方的接口。
// 内容生成本身是外部协作者，这里只约定边界并提供一个朴素实现。
package research

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	xerrors "AgentPay/internal/errors"
)

// Composer 根据主题与取回的资源正文撰写报告。
type Composer interface {
	Compose(ctx context.Context, theme string, resource []byte) (string, error)
}

// MarkdownComposer 生成参考实现风格的 Markdown 报告：
// 主题作为标题，资源正文按原样附在其后。
type MarkdownComposer struct{}

// Compose 实现 Composer 接口。
func (MarkdownComposer) Compose(_ context.Context, theme string, resource []byte) (string, error) {
	theme = strings.TrimSpace(theme)
	if theme == "" {
		return "", xerrors.New(xerrors.CodeInvalidArgument, "主题不能为空")
	}

	body := strings.TrimSpace(string(resource))
	// 资源是 JSON 时展开为可读的字段列表。
	var fields map[string]any
	if err := json.Unmarshal(resource, &fields); err == nil && len(fields) > 0 {
		var builder strings.Builder
		if name, ok := fields["name"].(string); ok {
			builder.WriteString(fmt.Sprintf("**%s**\n\n", name))
		}
		if desc, ok := fields["description"].(string); ok && desc != "" {
			builder.WriteString(desc)
			builder.WriteString("\n\n")
		}
		builder.WriteString("```json\n")
		builder.WriteString(body)
		builder.WriteString("\n```")
		body = builder.String()
	}

	return fmt.Sprintf("## %s\n\n%s", theme, body), nil
}

var _ Composer = MarkdownComposer{}
