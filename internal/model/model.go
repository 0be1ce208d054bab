package model

// Corporation is one row of the DART corp code master file.
type Corporation struct {
	CorpCode   string
	CorpName   string
	StockCode  string
	ModifyDate string
}

// CorpIndex maps a listed stock code to its DART registry entry.
type CorpIndex map[string]Corporation

type Constituent struct {
	StockCode string
	Name      string
	Market    string
}

// Company is a constituent joined to its registry entry.
type Company struct {
	CorpCode  string
	CorpName  string
	Name      string
	StockCode string
	Market    string
}

// Filing is a disclosure list item passed through verbatim from DART.
type Filing map[string]string

const FilingTitleField = "report_nm"

func (f Filing) Title() string {
	return f[FilingTitleField]
}

type FilingQuery struct {
	StartDate   string
	EndDate     string
	DetailTypes []string
	PageSize    int
}

type CompanyResult struct {
	CorpCode                 string
	CorpName                 string
	StockCode                string
	HasPostDividendProvision bool
	MatchingReports          []Filing
}
