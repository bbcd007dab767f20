package collector

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

// ErrInvalidSelector 选择器本身写错属于配置错误，整次解析直接失败
var ErrInvalidSelector = errors.New("invalid selector")

type selectorSpec struct {
	dst     *goquery.Matcher
	pattern string
}

// compileSelectors 预先编译选择器。goquery 的 Find 遇到非法选择器只会静默返回空结果，
// 这里改用 cascadia 直接编译，把错误暴露出来
func compileSelectors(specs ...selectorSpec) error {
	for _, s := range specs {
		m, err := cascadia.Compile(s.pattern)
		if err != nil {
			return fmt.Errorf("%w %q: %w", ErrInvalidSelector, s.pattern, err)
		}
		*s.dst = m
	}
	return nil
}

// relativeAge 优先取 age 元素内链接的文本（已解码实体），没有链接时退回原始内容
func relativeAge(age *goquery.Selection, link goquery.Matcher) string {
	if age.Length() == 0 {
		return ""
	}
	if a := age.FindMatcher(link).First(); a.Length() > 0 {
		return strings.TrimSpace(a.Text())
	}
	raw, err := age.Html()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(raw)
}

// leadingInt 解析第一个空白分隔的数字，例如 "100 points" -> 100，失败返回 0
func leadingInt(s string) int {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0
	}
	return n
}
