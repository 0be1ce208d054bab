package dart

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"dividendcheck/internal/model"
)

type corpCodeRow struct {
	CorpCode   string `xml:"corp_code"`
	CorpName   string `xml:"corp_name"`
	StockCode  string `xml:"stock_code"`
	ModifyDate string `xml:"modify_date"`
}

type statusDocument struct {
	Status  string `xml:"status" json:"status"`
	Message string `xml:"message" json:"message"`
}

// DownloadCodes fetches the corp code master archive and parses every
// <list> element in it.
func (p *Provider) DownloadCodes(ctx context.Context) ([]model.Corporation, error) {
	body, err := p.doRequest(ctx, p.archiveClient, p.config.CorpCodePath, nil, "application/zip")
	if err != nil {
		return nil, err
	}
	return parseCorpCodeArchive(body, p.config.CorpCodeFile)
}

func parseCorpCodeArchive(body []byte, fileName string) ([]model.Corporation, error) {
	reader, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		// An invalid key comes back as a status document instead of a zip.
		if apiErr := parseStatusDocument(body); apiErr != nil {
			return nil, apiErr
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}

	var entry *zip.File
	for _, file := range reader.File {
		if file.Name == fileName {
			entry = file
			break
		}
	}
	if entry == nil {
		return nil, fmt.Errorf("%w: %s not found", ErrInvalidArchive, fileName)
	}

	rc, err := entry.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}
	defer rc.Close()

	return decodeCorporations(rc)
}

// decodeCorporations streams <list> rows out of a single-rooted document.
func decodeCorporations(r io.Reader) ([]model.Corporation, error) {
	decoder := xml.NewDecoder(r)
	corporations := make([]model.Corporation, 0)
	depth, roots := 0, 0
	for {
		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
		}

		switch typed := token.(type) {
		case xml.StartElement:
			if depth == 0 {
				roots++
				if roots > 1 {
					return nil, fmt.Errorf("%w: multiple root elements", ErrInvalidArchive)
				}
			}
			if typed.Name.Local != "list" {
				depth++
				continue
			}

			var row corpCodeRow
			if err := decoder.DecodeElement(&row, &typed); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
			}
			corporations = append(corporations, model.Corporation{
				CorpCode:   strings.TrimSpace(row.CorpCode),
				CorpName:   strings.TrimSpace(row.CorpName),
				StockCode:  strings.TrimSpace(row.StockCode),
				ModifyDate: strings.TrimSpace(row.ModifyDate),
			})
		case xml.EndElement:
			depth--
		case xml.CharData:
			if depth == 0 && len(bytes.TrimSpace(typed)) > 0 {
				return nil, fmt.Errorf("%w: text outside root element", ErrInvalidArchive)
			}
		}
	}
	if roots == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrInvalidArchive)
	}
	return corporations, nil
}

func parseStatusDocument(body []byte) *APIError {
	var doc statusDocument
	trimmed := bytes.TrimSpace(body)
	switch {
	case bytes.HasPrefix(trimmed, []byte("<")):
		if err := xml.Unmarshal(trimmed, &doc); err != nil {
			return nil
		}
	case bytes.HasPrefix(trimmed, []byte("{")):
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil
		}
	default:
		return nil
	}

	status := strings.TrimSpace(doc.Status)
	if status == "" || status == statusOK {
		return nil
	}
	message := strings.TrimSpace(doc.Message)
	if message == "" {
		message = defaultMessage
	}
	return &APIError{Status: status, Message: message}
}

// BuildIndex keys corporations by stock code. Entries without a stock code
// or corp code are skipped and later duplicates replace earlier ones.
func BuildIndex(entries []model.Corporation) model.CorpIndex {
	index := make(model.CorpIndex)
	for _, entry := range entries {
		stockCode := strings.TrimSpace(entry.StockCode)
		corpCode := strings.TrimSpace(entry.CorpCode)
		if stockCode == "" || corpCode == "" {
			continue
		}
		index[stockCode] = entry
	}
	return index
}
