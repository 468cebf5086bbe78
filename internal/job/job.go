// Package job 定义一次生成任务的描述与结果。
package job

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Segment 是一次合成调用的输入：一段文本及其语言、音色、语速。
type Segment struct {
	Language string
	Text     string
	Voice    string
	Speed    string
}

// Descriptor 描述一个生成任务。创建后不可修改，身份完全由 Destination 决定。
// 单段任务对应一个 stem，多段任务对应一条组合播报（各段音频按顺序拼接）。
type Descriptor struct {
	destination string
	segments    []Segment
}

// NewStem 创建单段任务。
func NewStem(destination string, seg Segment) Descriptor {
	return Descriptor{destination: filepath.Clean(destination), segments: []Segment{seg}}
}

// NewComposed 创建多段组合任务，segs 至少两段。
func NewComposed(destination string, segs ...Segment) (Descriptor, error) {
	if len(segs) < 2 {
		return Descriptor{}, fmt.Errorf("[job] 组合任务 %s 至少需要两段，实际 %d 段", destination, len(segs))
	}
	cp := make([]Segment, len(segs))
	copy(cp, segs)
	return Descriptor{destination: filepath.Clean(destination), segments: cp}, nil
}

// Destination 返回输出文件路径。
func (d Descriptor) Destination() string { return d.destination }

// Composed 报告是否为多段组合任务。
func (d Descriptor) Composed() bool { return len(d.segments) > 1 }

// Segments 返回各段的副本。
func (d Descriptor) Segments() []Segment {
	cp := make([]Segment, len(d.segments))
	copy(cp, d.segments)
	return cp
}

// Language 返回首段语言，组合任务返回以 "+" 连接的各段语言。
func (d Descriptor) Language() string {
	langs := make([]string, len(d.segments))
	for i, s := range d.segments {
		langs[i] = s.Language
	}
	return strings.Join(langs, "+")
}

// Text 返回用于日志的文本，组合任务以 " | " 连接各段。
func (d Descriptor) Text() string {
	texts := make([]string, len(d.segments))
	for i, s := range d.segments {
		texts[i] = s.Text
	}
	return strings.Join(texts, " | ")
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s (%s: %q)", d.destination, d.Language(), d.Text())
}
