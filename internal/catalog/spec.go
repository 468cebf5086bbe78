// Package catalog 把静态目录定义展开为生成任务。
package catalog

// Range 是闭区间整数范围。
type Range struct {
	From int `yaml:"from"`
	To   int `yaml:"to"`
}

// Empty 报告范围是否为空。
func (r Range) Empty() bool { return r.To < r.From }

// CharRange 是闭区间字母范围，如 A–Z。
type CharRange struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// LanguageSpec 描述一种语言需要生成的 stem。
type LanguageSpec struct {
	Code  string `yaml:"code"`
	Voice string `yaml:"voice"`
	Speed string `yaml:"speed"`

	Phrases []string `yaml:"phrases"`

	Numbers Range `yaml:"numbers"`
	// NumberWords 为数字的朗读文本，下标相对 Numbers.From；为空时直接朗读数字。
	NumberWords []string `yaml:"number_words"`
	NumberSpeed string   `yaml:"number_speed"`

	Characters CharRange `yaml:"characters"`
	// Phonetics 为字母（小写）的朗读文本，如 c -> ซี。
	Phonetics map[string]string `yaml:"phonetics"`
}

// ComboSpec 描述一组组合播报：前缀字母 × 号码 × 窗口号。
type ComboSpec struct {
	Prefixes CharRange `yaml:"prefixes"`
	Numbers  Range     `yaml:"numbers"`
	Counters Range     `yaml:"counters"`
}

// SegmentTemplate 是组合播报中的一段，Template 支持 {number} 与 {counter} 占位符。
type SegmentTemplate struct {
	Language string `yaml:"language"`
	Template string `yaml:"template"`
	Voice    string `yaml:"voice"`
	Speed    string `yaml:"speed"`
}

// Spec 是完整的目录定义。
type Spec struct {
	Languages []LanguageSpec `yaml:"languages"`
	// PhraseFilenames 按语言覆盖短语文件名（不含扩展名），保证非拉丁文字的文件名可读。
	PhraseFilenames map[string]map[string]string `yaml:"phrase_filenames"`
	Combos          []ComboSpec                  `yaml:"combos"`
	Announcement    []SegmentTemplate            `yaml:"announcement"`
}

var thaiPhoneticAlphabet = map[string]string{
	"a": "เอ", "b": "บี", "c": "ซี", "d": "ดี", "e": "อี", "f": "เอฟ",
	"g": "จี", "h": "เอช", "i": "ไอ", "j": "เจ", "k": "เค", "l": "แอล",
	"m": "เอ็ม", "n": "เอ็น", "o": "โอ", "p": "พี", "q": "คิว", "r": "อาร์",
	"s": "เอส", "t": "ที", "u": "ยู", "v": "วี", "w": "ดับเบิลยู",
	"x": "เอ็กซ์", "y": "วาย", "z": "แซด",
}

func defaultCombos() []ComboSpec {
	return []ComboSpec{
		{Prefixes: CharRange{From: "A", To: "A"}, Numbers: Range{From: 1, To: 100}, Counters: Range{From: 1, To: 5}},
		{Prefixes: CharRange{From: "B", To: "C"}, Numbers: Range{From: 1, To: 10}, Counters: Range{From: 1, To: 5}},
	}
}

func defaultAnnouncement() []SegmentTemplate {
	return []SegmentTemplate{
		{Language: "th", Template: "หมายเลข {number} เชิญช่อง {counter}"},
		{Language: "en", Template: "Number {number} to counter {counter}"},
	}
}

// DefaultSpec 返回面向翻译类 TTS 的默认目录：泰语/英语的短语、0–9、A–Z，
// 以及 A01–A100、B01–C10 与 1–5 号窗口的组合播报。
func DefaultSpec() Spec {
	letters := CharRange{From: "A", To: "Z"}
	digits := Range{From: 0, To: 9}
	return Spec{
		Languages: []LanguageSpec{
			{Code: "th", Phrases: []string{"หมายเลข", "เชิญช่อง"}, Numbers: digits, Characters: letters},
			{Code: "en", Phrases: []string{"Number", "to counter"}, Numbers: digits, Characters: letters},
		},
		PhraseFilenames: map[string]map[string]string{
			"th": {"หมายเลข": "phrase_number", "เชิญช่อง": "phrase_to_counter"},
		},
		Combos:       defaultCombos(),
		Announcement: defaultAnnouncement(),
	}
}

// SpokenSpec 返回面向生成式 TTS 的目录：数字和字母使用朗读文本，
// 并为每种语言指定音色与语速。
func SpokenSpec() Spec {
	letters := CharRange{From: "A", To: "Z"}
	digits := Range{From: 0, To: 9}
	phonetics := make(map[string]string, len(thaiPhoneticAlphabet))
	for k, v := range thaiPhoneticAlphabet {
		phonetics[k] = v
	}
	return Spec{
		Languages: []LanguageSpec{
			{
				Code: "en", Voice: "Despina", Speed: "normal",
				Phrases:     []string{"Number", "to counter"},
				Numbers:     digits,
				NumberWords: []string{"Zero", "One", "Two", "Three", "Four", "Five", "Six", "Seven", "Eight", "Nine"},
				NumberSpeed: "slow",
				Characters:  letters,
			},
			{
				Code: "th", Voice: "Algieba", Speed: "normal",
				Phrases:     []string{"หมายเลข", "เชิญที่เคาน์เตอร์"},
				Numbers:     digits,
				NumberWords: []string{"ศูนย์", "หนึ่ง", "สอง", "สาม", "สี่", "ห้า", "หก", "เจ็ด", "แปด", "เก้า"},
				NumberSpeed: "slow",
				Characters:  letters,
				Phonetics:   phonetics,
			},
		},
		PhraseFilenames: map[string]map[string]string{
			"th": {"หมายเลข": "phrase_number", "เชิญที่เคาน์เตอร์": "phrase_to_counter"},
		},
		Combos:       defaultCombos(),
		Announcement: defaultAnnouncement(),
	}
}
