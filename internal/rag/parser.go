package rag

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"
)

// ErrNotPDF 文件内容不是PDF
var ErrNotPDF = errors.New("file content is not a valid PDF")

// ErrNoExtractableText PDF中无可提取文本（如纯扫描件）
var ErrNoExtractableText = errors.New("no extractable text found in document")

var pdfMagic = []byte("%PDF-")

// IsPDF 通过magic bytes判断内容是否为PDF，不信任文件扩展名
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(data, pdfMagic)
}

// ExtractText 按页序提取PDF文本
func ExtractText(data []byte) (string, error) {
	if !IsPDF(data) {
		return "", ErrNotPDF
	}

	pdfReader, err := model.NewPdfReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("解析PDF失败: %w", err)
	}

	numPages, err := pdfReader.GetNumPages()
	if err != nil {
		return "", fmt.Errorf("获取PDF页数失败: %w", err)
	}

	var textBuilder strings.Builder
	for i := 1; i <= numPages; i++ {
		page, err := pdfReader.GetPage(i)
		if err != nil {
			continue
		}

		ex, err := extractor.New(page)
		if err != nil {
			continue
		}

		text, err := ex.ExtractText()
		if err != nil {
			continue
		}

		textBuilder.WriteString(text)
		textBuilder.WriteString("\n")
	}

	text := textBuilder.String()
	if strings.TrimSpace(text) == "" {
		return "", ErrNoExtractableText
	}
	return text, nil
}
