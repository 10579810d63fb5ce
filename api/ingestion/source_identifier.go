package ingestion

// Known plugin type names. The PluginRegistry (internal/plugin) is keyed
// by these strings at runtime; they are listed here only because
// SourceIdentifierFor must special-case them (spec.md §3.4).
const (
	PluginGitCrawler        = "git-crawler"
	PluginGoogleDriveCrawler = "googledrive-crawler"
	PluginHTTPCrawler       = "http-crawler"
)

// SourceIdentifierFor is the one place in the core that inspects
// plugin-specific config keys. It derives the string that uniquely names
// the external resource behind a source config, or returns ok=false for
// an unrecognized plugin type.
func SourceIdentifierFor(ref PluginRef) (id string, ok bool) {
	switch ref.PluginType {
	case PluginGitCrawler:
		v, _ := ref.Config["repoUrl"].(string)
		if v == "" {
			return "", false
		}
		return v, true
	case PluginGoogleDriveCrawler:
		v, _ := ref.Config["folderId"].(string)
		if v == "" {
			return "", false
		}
		return v, true
	case PluginHTTPCrawler:
		if v, _ := ref.Config["url"].(string); v != "" {
			return v, true
		}
		if v, _ := ref.Config["startUrl"].(string); v != "" {
			return v, true
		}
		return "", false
	default:
		return "", false
	}
}
