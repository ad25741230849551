package preview

const (
	BundleName   = "BRANDED_PREVIEW"
	FormatString = "JPEG"
	Description  = "Generated Branded Preview"

	filteredSuffix = ".preview.jpg"
	handlePrefix   = "hdl:"
)

// FilterInfo is what the filter advertises to the repository hosting it.
type FilterInfo struct {
	BundleName   string `json:"bundle_name"`
	FormatString string `json:"format"`
	Description  string `json:"description"`
	Suffix       string `json:"filtered_suffix"`
}

func Info() FilterInfo {
	return FilterInfo{
		BundleName:   BundleName,
		FormatString: FormatString,
		Description:  Description,
		Suffix:       filteredSuffix,
	}
}

// FilteredName is the name stored for the preview of oldName.
func FilteredName(oldName string) string {
	return oldName + filteredSuffix
}

// BrandIdentifier is the identifier text printed in the brand strip.
func BrandIdentifier(identifier string) string {
	if identifier == "" {
		return ""
	}
	return handlePrefix + identifier
}
