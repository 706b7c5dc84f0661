package odata

// OData system query options.
const (
	ParamFilter  = "$filter"
	ParamSelect  = "$select"
	ParamExpand  = "$expand"
	ParamOrderBy = "$orderby"
	ParamTop     = "$top"
	ParamSkip    = "$skip"
	ParamCount   = "$count"
)

// OData JSON annotations.
const (
	AnnotationContext  = "@odata.context"
	AnnotationNextLink = "@odata.nextLink"
	AnnotationCount    = "@odata.count"
	AnnotationETag     = "@odata.etag"
)

// Filter naming conventions.
const (
	// CustomFilterField carries a raw OData expression appended as-is.
	CustomFilterField = "customFilter"

	// SuffixFrom marks a lower date bound (ge).
	SuffixFrom = "From"

	// SuffixTo marks an upper date bound (le).
	SuffixTo = "To"
)

const (
	clauseSeparator = " and "
	listSeparator   = ","
	quote           = "'"
	doubleQuote     = "''"
)
