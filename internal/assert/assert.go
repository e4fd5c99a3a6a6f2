// Package assert 对 DOM 快照与存储值做无状态断言，失败返回 *model.AssertionFailure。
package assert

import (
	"fmt"
	"strconv"
	"strings"

	"storyharness/pkg/model"
)

// Field 列表行中的列
type Field int

const (
	FieldTitle Field = iota
	FieldAuthor
	FieldComments
	FieldPoints
)

func (f Field) String() string {
	switch f {
	case FieldTitle:
		return "title"
	case FieldAuthor:
		return "author"
	case FieldComments:
		return "comments"
	case FieldPoints:
		return "points"
	}
	return "field" + strconv.Itoa(int(f))
}

// Numeric 数值列按数字比较，其余按字典序
func (f Field) Numeric() bool { return f == FieldComments || f == FieldPoints }

// FieldBySortLabel 排序按钮文本对应的列
func FieldBySortLabel(label string) (Field, bool) {
	switch label {
	case "Title":
		return FieldTitle, true
	case "Author":
		return FieldAuthor, true
	case "Comments":
		return FieldComments, true
	case "Points":
		return FieldPoints, true
	}
	return 0, false
}

type Direction int

const (
	Ascending Direction = iota
	Descending
)

func (d Direction) String() string {
	if d == Descending {
		return "descending"
	}
	return "ascending"
}

// Reverse 相反方向
func (d Direction) Reverse() Direction {
	if d == Descending {
		return Ascending
	}
	return Descending
}

func fail(check string, expected, actual any) error {
	return &model.AssertionFailure{Check: check, Expected: expected, Actual: actual}
}

// Count 元素数量相等
func Count(selector string, els []model.Element, n int) error {
	if len(els) != n {
		return fail(selector+" should have length", n, len(els))
	}
	return nil
}

// Visible 至少存在一个元素且全部可见
func Visible(selector string, els []model.Element) error {
	if len(els) == 0 {
		return fail(selector+" should be visible", "an element", "none")
	}
	for i, el := range els {
		if !el.Visible {
			return fail(selector+" should be visible", "visible", fmt.Sprintf("element %d hidden", i))
		}
	}
	return nil
}

// Contains 元素文本包含子串
func Contains(selector string, el model.Element, sub string) error {
	if !strings.Contains(el.Text, sub) {
		return fail(selector+" should contain", strconv.Quote(sub), strconv.Quote(el.Text))
	}
	return nil
}

// FirstContains 第一个元素文本包含子串
func FirstContains(selector string, els []model.Element, sub string) error {
	if len(els) == 0 {
		return fail(selector+" first should contain", strconv.Quote(sub), "no elements")
	}
	return Contains(selector+":first", els[0], sub)
}

// AnyVisibleContaining 存在文本包含 sub 且可见的元素，对应 `sel:contains(sub)` 可见
func AnyVisibleContaining(selector string, els []model.Element, sub string) error {
	for _, el := range els {
		if strings.Contains(el.Text, sub) {
			if !el.Visible {
				return fail(fmt.Sprintf("%s:contains(%s) should be visible", selector, sub), "visible", "hidden")
			}
			return nil
		}
	}
	return fail(fmt.Sprintf("%s:contains(%s) should exist", selector, sub), "an element", "none")
}

// NoneContaining 不存在文本包含 sub 的元素
func NoneContaining(selector string, els []model.Element, sub string) error {
	for _, el := range els {
		if strings.Contains(el.Text, sub) {
			return fail(fmt.Sprintf("%s:contains(%s) should not exist", selector, sub), "none", strconv.Quote(el.Text))
		}
	}
	return nil
}

// Row 第 i 行的标题、作者、评论数、分数与故事一致
func Row(els []model.Element, i int, s model.Story) error {
	check := fmt.Sprintf(".item[%d] should render story %s", i, s.ObjectID)
	if i >= len(els) {
		return fail(check, "a row", fmt.Sprintf("%d rows", len(els)))
	}
	want := []string{s.Title, s.Author, strconv.Itoa(s.NumComments), strconv.Itoa(s.Points)}
	got := els[i].Fields
	if len(got) < len(want) {
		return fail(check, want, got)
	}
	for f, w := range want {
		if strings.TrimSpace(got[f]) != w {
			return fail(check, want, got[:len(want)])
		}
	}
	return nil
}

// StorageEquals 存储值完全相等
func StorageEquals(key, got string, ok bool, want string) error {
	if !ok {
		return fail("storage["+key+"]", strconv.Quote(want), "missing")
	}
	if got != want {
		return fail("storage["+key+"]", strconv.Quote(want), strconv.Quote(got))
	}
	return nil
}

// Ordered 元素按指定列与方向排序
func Ordered(els []model.Element, field Field, dir Direction) error {
	check := fmt.Sprintf("items ordered by %s %s", field, dir)
	for i := 1; i < len(els); i++ {
		a, err := cell(els[i-1], field)
		if err != nil {
			return fail(check, "row with "+field.String(), err.Error())
		}
		b, err := cell(els[i], field)
		if err != nil {
			return fail(check, "row with "+field.String(), err.Error())
		}
		c, err := compare(a, b, field.Numeric())
		if err != nil {
			return fail(check, "numeric "+field.String(), err.Error())
		}
		if (dir == Ascending && c > 0) || (dir == Descending && c < 0) {
			return fail(check, fmt.Sprintf("%q then %q in %s order", a, b, dir), fmt.Sprintf("out of order at row %d", i))
		}
	}
	return nil
}

func cell(el model.Element, f Field) (string, error) {
	if int(f) >= len(el.Fields) {
		return "", fmt.Errorf("row %q has %d fields", el.Text, len(el.Fields))
	}
	return el.Fields[f], nil
}

func compare(a, b string, numeric bool) (int, error) {
	if !numeric {
		return strings.Compare(a, b), nil
	}
	x, err := strconv.Atoi(strings.TrimSpace(a))
	if err != nil {
		return 0, err
	}
	y, err := strconv.Atoi(strings.TrimSpace(b))
	if err != nil {
		return 0, err
	}
	switch {
	case x < y:
		return -1, nil
	case x > y:
		return 1, nil
	}
	return 0, nil
}
