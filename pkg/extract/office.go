// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"
)

// officeExtractor handles Word and Excel documents.
type officeExtractor struct{}

func (e *officeExtractor) CanExtract(filePath string) bool {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".docx", ".xlsx":
		return true
	}
	return false
}

func (e *officeExtractor) Extensions() []string {
	return []string{".docx", ".xlsx"}
}

func (e *officeExtractor) Extract(ctx context.Context, filePath string) (string, error) {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".docx":
		return e.extractWord(filePath)
	case ".xlsx":
		return e.extractExcel(ctx, filePath)
	default:
		return "", NewExtractionError("office", filePath, "unsupported Office format", nil)
	}
}

func (e *officeExtractor) extractWord(filePath string) (string, error) {
	doc, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return "", NewExtractionError("docx", filePath, "failed to parse Word document", err)
	}
	defer doc.Close()

	return doc.Editable().GetContent(), nil
}

func (e *officeExtractor) extractExcel(ctx context.Context, filePath string) (string, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return "", NewExtractionError("xlsx", filePath, "failed to parse Excel document", err)
	}
	defer f.Close()

	// Cap cells per sheet to avoid huge outputs
	const maxCells = 1000

	var contentParts []string
	for _, sheetName := range f.GetSheetList() {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		rows, err := f.GetRows(sheetName)
		if err != nil {
			return "", NewExtractionError("xlsx", filePath,
				fmt.Sprintf("failed to read sheet %s", sheetName), err)
		}

		var sheetText strings.Builder
		sheetText.WriteString(fmt.Sprintf("--- Sheet: %s ---\n", sheetName))

		cellCount := 0
	rowLoop:
		for rowIndex, row := range rows {
			for colIndex, cell := range row {
				if cellCount >= maxCells {
					sheetText.WriteString("... (truncated)\n")
					break rowLoop
				}
				if text := strings.TrimSpace(cell); text != "" {
					cellRef := fmt.Sprintf("%s%d", columnLetter(colIndex), rowIndex+1)
					sheetText.WriteString(fmt.Sprintf("%s: %s\n", cellRef, text))
					cellCount++
				}
			}
		}

		if text := strings.TrimSpace(sheetText.String()); text != "" {
			contentParts = append(contentParts, text)
		}
	}

	return strings.Join(contentParts, "\n\n"), nil
}

// columnLetter converts a 0-based column index to an Excel column letter
// (A, B, ..., Z, AA, AB, ...).
func columnLetter(index int) string {
	result := ""
	for {
		result = string(rune('A'+index%26)) + result
		index = index/26 - 1
		if index < 0 {
			break
		}
	}
	return result
}
