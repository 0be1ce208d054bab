package dart

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dividendcheck/internal/model"
)

const corpCodeXML = `<?xml version="1.0" encoding="UTF-8"?>
<result>
  <list>
    <corp_code>00126380</corp_code>
    <corp_name> 삼성전자 </corp_name>
    <stock_code>005930</stock_code>
    <modify_date>20240102</modify_date>
  </list>
  <list>
    <corp_code>00434003</corp_code>
    <corp_name>다코</corp_name>
    <stock_code> </stock_code>
    <modify_date>20170630</modify_date>
  </list>
  <list>
    <corp_code>00164779</corp_code>
    <corp_name>SK하이닉스</corp_name>
  </list>
</result>`

func buildArchive(t *testing.T, name, content string) []byte {
	t.Helper()
	var buf bytes.Buffer
	writer := zip.NewWriter(&buf)
	file, err := writer.Create(name)
	require.NoError(t, err)
	_, err = file.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return buf.Bytes()
}

func TestDownloadCodes_ParsesArchive(t *testing.T) {
	archive := buildArchive(t, "CORPCODE.xml", corpCodeXML)
	var gotPath, gotKey string
	provider := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("crtfc_key")
		w.Header().Set("Content-Type", "application/zip")
		_, _ = w.Write(archive)
	}))

	corporations, err := provider.DownloadCodes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/corpCode.xml", gotPath)
	assert.Equal(t, "test-key", gotKey)

	require.Len(t, corporations, 3)
	assert.Equal(t, model.Corporation{CorpCode: "00126380", CorpName: "삼성전자", StockCode: "005930", ModifyDate: "20240102"}, corporations[0])
	assert.Equal(t, "", corporations[1].StockCode)
	assert.Equal(t, model.Corporation{CorpCode: "00164779", CorpName: "SK하이닉스"}, corporations[2])
}

func TestDownloadCodes_NotAnArchive(t *testing.T) {
	provider := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("definitely not a zip"))
	}))

	_, err := provider.DownloadCodes(context.Background())
	require.ErrorIs(t, err, ErrInvalidArchive)
}

func TestDownloadCodes_StatusDocument(t *testing.T) {
	provider := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><result><status>010</status><message>등록되지 않은 키입니다.</message></result>`))
	}))

	_, err := provider.DownloadCodes(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "010", apiErr.Status)
	assert.Equal(t, "등록되지 않은 키입니다.", apiErr.Message)
}

func TestParseCorpCodeArchive_MissingEntry(t *testing.T) {
	archive := buildArchive(t, "OTHER.xml", corpCodeXML)

	_, err := parseCorpCodeArchive(archive, "CORPCODE.xml")
	require.ErrorIs(t, err, ErrInvalidArchive)
	assert.Contains(t, err.Error(), "CORPCODE.xml not found")
}

func TestParseCorpCodeArchive_MalformedXML(t *testing.T) {
	archive := buildArchive(t, "CORPCODE.xml", `<result><list><corp_code>001</corp_code></result>`)

	_, err := parseCorpCodeArchive(archive, "CORPCODE.xml")
	require.ErrorIs(t, err, ErrInvalidArchive)
}

func TestParseCorpCodeArchive_RejectsContentAfterRoot(t *testing.T) {
	cases := map[string]string{
		"second root":   `<result/><result><list><corp_code>001</corp_code><stock_code>000001</stock_code></list></result>`,
		"second list":   `<list><corp_code>001</corp_code></list><list><corp_code>002</corp_code></list>`,
		"trailing text": `<result></result>junk`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			archive := buildArchive(t, "CORPCODE.xml", content)

			corporations, err := parseCorpCodeArchive(archive, "CORPCODE.xml")
			require.ErrorIs(t, err, ErrInvalidArchive)
			assert.Nil(t, corporations)
		})
	}
}

func TestParseCorpCodeArchive_EmptyDocument(t *testing.T) {
	archive := buildArchive(t, "CORPCODE.xml", "")

	_, err := parseCorpCodeArchive(archive, "CORPCODE.xml")
	require.ErrorIs(t, err, ErrInvalidArchive)
}

func TestBuildIndex(t *testing.T) {
	entries := []model.Corporation{
		{CorpCode: "00126380", CorpName: "Sample Co", StockCode: "005930"},
		{CorpCode: "", CorpName: "No Code", StockCode: "000020"},
		{CorpCode: "00434003", CorpName: "Unlisted", StockCode: ""},
		{CorpCode: "00999999", CorpName: "Padded", StockCode: " 000660 "},
		{CorpCode: "00126381", CorpName: "Sample Co Renamed", StockCode: "005930"},
	}

	index := BuildIndex(entries)
	require.Len(t, index, 2)
	assert.Equal(t, "Sample Co Renamed", index["005930"].CorpName)
	assert.Equal(t, "00126381", index["005930"].CorpCode)
	assert.Equal(t, "Padded", index["000660"].CorpName)
	_, ok := index[""]
	assert.False(t, ok)
}

func TestBuildIndex_Empty(t *testing.T) {
	assert.Empty(t, BuildIndex(nil))
}
