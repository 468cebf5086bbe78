package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/iabetor/stemgen/internal/job"
)

// StemJobs 为每种语言展开短语、数字、字母三类 stem，输出到 baseDir/<语言>/。
// 除创建语言目录外不做任何 I/O。
func StemJobs(spec Spec, baseDir string) ([]job.Descriptor, error) {
	var jobs []job.Descriptor
	seen := make(map[string]string)

	add := func(dest string, seg job.Segment) error {
		if prev, ok := seen[dest]; ok {
			return fmt.Errorf("[catalog] 输出路径重复: %s（%q 与 %q）", dest, prev, seg.Text)
		}
		seen[dest] = seg.Text
		jobs = append(jobs, job.NewStem(dest, seg))
		return nil
	}

	for _, lang := range spec.Languages {
		if lang.Code == "" {
			return nil, fmt.Errorf("[catalog] 语言代码不能为空")
		}
		langDir := filepath.Join(baseDir, lang.Code)
		if err := os.MkdirAll(langDir, 0755); err != nil {
			return nil, fmt.Errorf("[catalog] 创建目录 %s 失败: %w", langDir, err)
		}
		overrides := spec.PhraseFilenames[lang.Code]

		for _, phrase := range lang.Phrases {
			seg := job.Segment{Language: lang.Code, Text: phrase, Voice: lang.Voice, Speed: lang.Speed}
			if err := add(filepath.Join(langDir, StemFilename(phrase, overrides)), seg); err != nil {
				return nil, err
			}
		}

		if !lang.Numbers.Empty() {
			speed := lang.NumberSpeed
			if speed == "" {
				speed = lang.Speed
			}
			for n := lang.Numbers.From; n <= lang.Numbers.To; n++ {
				text := strconv.Itoa(n)
				if i := n - lang.Numbers.From; i < len(lang.NumberWords) && lang.NumberWords[i] != "" {
					text = lang.NumberWords[i]
				}
				seg := job.Segment{Language: lang.Code, Text: text, Voice: lang.Voice, Speed: speed}
				if err := add(filepath.Join(langDir, NumberFilename(n)), seg); err != nil {
					return nil, err
				}
			}
		}

		letters, err := expandChars(lang.Characters)
		if err != nil {
			return nil, fmt.Errorf("[catalog] 语言 %s: %w", lang.Code, err)
		}
		for _, letter := range letters {
			text := letter
			if spoken, ok := lang.Phonetics[strings.ToLower(letter)]; ok && spoken != "" {
				text = spoken
			}
			seg := job.Segment{Language: lang.Code, Text: text, Voice: lang.Voice, Speed: lang.Speed}
			if err := add(filepath.Join(langDir, StemFilename(letter, nil)), seg); err != nil {
				return nil, err
			}
		}
	}

	return jobs, nil
}

// ComposedJobs 展开组合播报：每个 前缀 × 号码 × 窗口 生成一个多段任务，输出到 dir/。
func ComposedJobs(spec Spec, dir string) ([]job.Descriptor, error) {
	if len(spec.Combos) == 0 {
		return nil, nil
	}
	if len(spec.Announcement) < 2 {
		return nil, fmt.Errorf("[catalog] 组合播报至少需要两段模板，实际 %d 段", len(spec.Announcement))
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("[catalog] 创建目录 %s 失败: %w", dir, err)
	}

	voices := make(map[string]LanguageSpec, len(spec.Languages))
	for _, l := range spec.Languages {
		voices[l.Code] = l
	}

	var jobs []job.Descriptor
	seen := make(map[string]bool)
	for _, combo := range spec.Combos {
		prefixes, err := expandChars(combo.Prefixes)
		if err != nil {
			return nil, fmt.Errorf("[catalog] 组合前缀: %w", err)
		}
		for _, prefix := range prefixes {
			for number := combo.Numbers.From; number <= combo.Numbers.To; number++ {
				for counter := combo.Counters.From; counter <= combo.Counters.To; counter++ {
					dest := filepath.Join(dir, ComposedFilename(prefix, number, counter))
					if seen[dest] {
						return nil, fmt.Errorf("[catalog] 组合输出路径重复: %s", dest)
					}
					seen[dest] = true

					segs := renderAnnouncement(spec.Announcement, voices, fmt.Sprintf("%s%02d", prefix, number), counter)
					d, err := job.NewComposed(dest, segs...)
					if err != nil {
						return nil, err
					}
					jobs = append(jobs, d)
				}
			}
		}
	}
	return jobs, nil
}

func renderAnnouncement(templates []SegmentTemplate, langs map[string]LanguageSpec, number string, counter int) []job.Segment {
	r := strings.NewReplacer("{number}", number, "{counter}", strconv.Itoa(counter))
	segs := make([]job.Segment, 0, len(templates))
	for _, t := range templates {
		voice, speed := t.Voice, t.Speed
		if l, ok := langs[t.Language]; ok {
			if voice == "" {
				voice = l.Voice
			}
			if speed == "" {
				speed = l.Speed
			}
		}
		segs = append(segs, job.Segment{Language: t.Language, Text: r.Replace(t.Template), Voice: voice, Speed: speed})
	}
	return segs
}

// expandChars 展开字母区间，空区间返回 nil。
func expandChars(cr CharRange) ([]string, error) {
	if cr.From == "" && cr.To == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(cr.From) != 1 || utf8.RuneCountInString(cr.To) != 1 {
		return nil, fmt.Errorf("字母区间必须是单个字符: %q–%q", cr.From, cr.To)
	}
	from, _ := utf8.DecodeRuneInString(cr.From)
	to, _ := utf8.DecodeRuneInString(cr.To)
	if to < from {
		return nil, fmt.Errorf("字母区间无效: %q–%q", cr.From, cr.To)
	}
	out := make([]string, 0, to-from+1)
	for r := from; r <= to; r++ {
		out = append(out, string(r))
	}
	return out, nil
}
