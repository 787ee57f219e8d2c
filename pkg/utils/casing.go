package utils

import "strings"

// 数据库行是 snake_case，API 出入参是 camelCase
// 这里做纯结构转换：递归处理 map / slice，叶子值原样透传（含 nil）

// SnakeToCamel 转换单个 key："platform_campaign_id" -> "platformCampaignId"
func SnakeToCamel(s string) string {
	if !strings.Contains(s, "_") {
		return s
	}
	parts := strings.Split(s, "_")
	var b strings.Builder
	for i, p := range parts {
		if p == "" {
			continue
		}
		if b.Len() == 0 && i == 0 {
			b.WriteString(p)
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}

// CamelToSnake 转换单个 key："platformCampaignId" -> "platform_campaign_id"
func CamelToSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r - 'A' + 'a')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ToCamelKeys 递归转换 JSON 值的所有 key 为 camelCase
// 支持 map[string]interface{} 与 []interface{}，数组元素逐个转换且保持顺序
func ToCamelKeys(v interface{}) interface{} {
	return convertKeys(v, SnakeToCamel)
}

// ToSnakeKeys 递归转换 JSON 值的所有 key 为 snake_case
func ToSnakeKeys(v interface{}) interface{} {
	return convertKeys(v, CamelToSnake)
}

func convertKeys(v interface{}, fn func(string) string) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, inner := range val {
			out[fn(k)] = convertKeys(inner, fn)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, inner := range val {
			out[i] = convertKeys(inner, fn)
		}
		return out
	default:
		// 叶子值（string/number/bool/nil）原样返回
		return v
	}
}
