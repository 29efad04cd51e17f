package season

import "strings"

var (
	cnDigits   = []string{"零", "一", "二", "三", "四", "五", "六", "七", "八", "九"}
	cnUnits    = []string{"", "十", "百", "千"}
	cnSections = []string{"", "万", "亿"}
)

// Numeral writes n in Chinese numerals the way titles do: 10 is "十",
// 21 is "二十一", 101 is "一百零一".
func Numeral(n int) string {
	if n == 0 {
		return cnDigits[0]
	}
	if n < 0 {
		return "负" + Numeral(-n)
	}

	var sections []int
	for n > 0 && len(sections) < len(cnSections) {
		sections = append(sections, n%10000)
		n /= 10000
	}

	var b strings.Builder
	needZero := false
	for i := len(sections) - 1; i >= 0; i-- {
		sec := sections[i]
		if sec == 0 {
			needZero = b.Len() > 0
			continue
		}
		if b.Len() > 0 && (needZero || sec < 1000) {
			b.WriteString(cnDigits[0])
		}
		b.WriteString(section(sec))
		b.WriteString(cnSections[i])
		needZero = false
	}

	out := b.String()
	if strings.HasPrefix(out, "一十") {
		out = strings.TrimPrefix(out, "一")
	}
	return out
}

// section renders 1..9999.
func section(n int) string {
	var b strings.Builder
	zero := false
	for pos := 3; pos >= 0; pos-- {
		div := 1
		for i := 0; i < pos; i++ {
			div *= 10
		}
		d := (n / div) % 10
		if d == 0 {
			zero = b.Len() > 0
			continue
		}
		if zero {
			b.WriteString(cnDigits[0])
			zero = false
		}
		b.WriteString(cnDigits[d])
		b.WriteString(cnUnits[pos])
	}
	return b.String()
}
