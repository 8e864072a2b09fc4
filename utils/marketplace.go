package utils

import "strings"

var marketplaceIdByCountry = map[string]string{
	"DE": "A1PA6795UKMFR9",
	"UK": "A1F83G8C2ARO7P",
	"GB": "A1F83G8C2ARO7P",
	"FR": "A13V1IB3VIYZZH",
	"IT": "APJ6JRA9NG5V4",
	"ES": "A1RKKUPIHCS9HS",
	"NL": "A1805IZSGTT6HS",
	"SE": "A2NODRKZP88ZB9",
	"PL": "A1C3SOZRARQ6R3",
	"US": "ATVPDKIKX0DER",
	"CA": "A2EUQ1WTGCTBG2",
}

var marketplaceIdByDomain = map[string]string{
	"amazon.de":    "A1PA6795UKMFR9",
	"amazon.co.uk": "A1F83G8C2ARO7P",
	"amazon.fr":    "A13V1IB3VIYZZH",
	"amazon.it":    "APJ6JRA9NG5V4",
	"amazon.es":    "A1RKKUPIHCS9HS",
	"amazon.nl":    "A1805IZSGTT6HS",
	"amazon.se":    "A2NODRKZP88ZB9",
	"amazon.pl":    "A1C3SOZRARQ6R3",
	"amazon.com":   "ATVPDKIKX0DER",
	"amazon.ca":    "A2EUQ1WTGCTBG2",
}

// NormalizeMarketplaceID maps country codes and amazon domains to the canonical
// SP-API marketplace id. The second return is false when the value is unrecognized
// (callers keep it as stored).
func NormalizeMarketplaceID(value string) (string, bool) {
	v := strings.TrimSpace(value)
	if v == "" {
		return "", false
	}
	if IsCanonicalMarketplaceID(v) {
		return v, true
	}
	if id, ok := marketplaceIdByCountry[strings.ToUpper(v)]; ok {
		return id, true
	}
	domain := strings.ToLower(v)
	domain = strings.TrimPrefix(domain, "https://")
	domain = strings.TrimPrefix(domain, "http://")
	domain = strings.TrimPrefix(domain, "www.")
	domain = strings.TrimSuffix(domain, "/")
	if id, ok := marketplaceIdByDomain[domain]; ok {
		return id, true
	}
	return v, false
}

func IsCanonicalMarketplaceID(value string) bool {
	for _, id := range marketplaceIdByCountry {
		if id == value {
			return true
		}
	}
	return false
}
