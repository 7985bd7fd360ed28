package rag

import (
	"unicode"
	"unicode/utf8"
)

// Chunk 分块后的文本片段。
// Start/End是片段在原始提取文本中的字节偏移，文本本身经过空白规范化。
type Chunk struct {
	Index int
	Text  string
	Start int
	End   int
}

// Chunker 固定窗口文本分块器
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

// NewChunker 创建分块器
func NewChunker(chunkSize, overlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 500
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: overlap,
	}
}

// Split 将文本切分为带重叠的chunk序列，空文本返回nil。
// 窗口按规范化后的rune计数滑动，偏移量映射回原文。
func (c *Chunker) Split(text string) []Chunk {
	runes, offsets := normalizeWhitespace(text)
	if len(runes) == 0 {
		return nil
	}

	var chunks []Chunk

	step := c.chunkSize - c.chunkOverlap
	if step <= 0 {
		step = c.chunkSize
	}

	for start := 0; start < len(runes); start += step {
		end := start + c.chunkSize
		if end > len(runes) {
			end = len(runes)
		}

		// 去掉窗口边缘落下的空格，偏移随之收缩
		ws, we := start, end
		for ws < we && runes[ws] == ' ' {
			ws++
		}
		for we > ws && runes[we-1] == ' ' {
			we--
		}
		if we > ws {
			chunks = append(chunks, Chunk{
				Index: len(chunks),
				Text:  string(runes[ws:we]),
				Start: offsets[ws],
				End:   offsets[we-1] + utf8.RuneLen(runes[we-1]),
			})
		}

		if end == len(runes) {
			break
		}
	}

	return chunks
}

// normalizeWhitespace 折叠连续空白为单个空格并去除首尾空白。
// 第二个返回值记录每个规范化rune在原文中的字节偏移，
// 折叠出的空格使用原空白串首个字符的偏移。
func normalizeWhitespace(s string) ([]rune, []int) {
	runes := make([]rune, 0, len(s))
	offsets := make([]int, 0, len(s))

	var prevSpace bool
	for i, r := range s {
		if unicode.IsSpace(r) {
			if prevSpace || len(runes) == 0 {
				continue
			}
			runes = append(runes, ' ')
			offsets = append(offsets, i)
			prevSpace = true
			continue
		}
		runes = append(runes, r)
		offsets = append(offsets, i)
		prevSpace = false
	}

	if n := len(runes); n > 0 && runes[n-1] == ' ' {
		runes = runes[:n-1]
		offsets = offsets[:n-1]
	}
	return runes, offsets
}
