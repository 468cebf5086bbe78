package catalog

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/mozillazg/go-pinyin"
)

// AudioExt 是所有输出文件的扩展名。
const AudioExt = ".mp3"

var filenameSanitizer = regexp.MustCompile(`[\\/*?:"<>|]`)

var pinyinArgs = pinyin.NewArgs()

// StemFilename 根据文本和语言生成稳定的文件名：
//   - overrides 命中时直接使用覆盖名；
//   - 纯数字 -> number_005.mp3；
//   - 单个字母 -> char_a.mp3；
//   - 其它 -> phrase_<清洗后的文本>.mp3，汉字先转为拼音。
func StemFilename(text string, overrides map[string]string) string {
	if name, ok := overrides[text]; ok {
		return name + AudioExt
	}

	if n, ok := numericValue(text); ok {
		return NumberFilename(n)
	}

	if utf8.RuneCountInString(text) == 1 {
		r, _ := utf8.DecodeRuneInString(text)
		if unicode.IsLetter(r) {
			return "char_" + sanitize(text) + AudioExt
		}
	}

	return "phrase_" + sanitize(transliterate(text)) + AudioExt
}

// NumberFilename 返回数字 stem 的文件名，三位补零。
func NumberFilename(n int) string {
	return fmt.Sprintf("number_%03d%s", n, AudioExt)
}

// ComposedFilename 返回组合播报的文件名，如 A07-3.mp3。
func ComposedFilename(prefix string, number, counter int) string {
	return fmt.Sprintf("%s%02d-%d%s", prefix, number, counter, AudioExt)
}

func numericValue(text string) (int, bool) {
	if text == "" {
		return 0, false
	}
	for _, r := range text {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(text)
	if err != nil {
		return 0, false
	}
	return n, true
}

func sanitize(text string) string {
	s := filenameSanitizer.ReplaceAllString(text, "")
	return strings.ToLower(strings.ReplaceAll(s, " ", "_"))
}

// transliterate 把文本中的汉字片段转为空格分隔的拼音，其它字符原样保留。
func transliterate(text string) string {
	hasHan := false
	for _, r := range text {
		if unicode.Is(unicode.Han, r) {
			hasHan = true
			break
		}
	}
	if !hasHan {
		return text
	}

	var parts []string
	var run strings.Builder
	inHan := false
	flush := func() {
		if run.Len() == 0 {
			return
		}
		if inHan {
			parts = append(parts, strings.Join(pinyin.LazyPinyin(run.String(), pinyinArgs), " "))
		} else if s := strings.TrimSpace(run.String()); s != "" {
			parts = append(parts, s)
		}
		run.Reset()
	}
	for _, r := range text {
		han := unicode.Is(unicode.Han, r)
		if han != inHan {
			flush()
			inHan = han
		}
		run.WriteRune(r)
	}
	flush()
	return strings.Join(parts, " ")
}
