package fusionbrain

const (
	DefaultAPIBase    = "https://api-key.fusionbrain.ai"
	DefaultStylesBase = "https://cdn.fusionbrain.ai"

	modelsPath = "/key/api/v1/models"
	stylesPath = "/static/styles/key"
	runPath    = "/key/api/v1/text2image/run"
	statusPath = "/key/api/v1/text2image/status/"
)

// The service rejects requests that do not look like a browser. Host is left to
// net/http, which derives it from the URL.
var browserHeaders = map[string]string{
	"Accept":                    "application/json, text/plain, */*",
	"Accept-Language":           "ru-RU,ru;q=0.9,en;q=0.8",
	"Cache-Control":             "no-cache",
	"Connection":                "keep-alive",
	"DNT":                       "1",
	"Origin":                    "cdn.fusionbrain.ai",
	"Referer":                   "cdn.fusionbrain.ai",
	"Sec-fetch-dest":            "document",
	"Sec-fetch-mode":            "navigate",
	"Sec-fetch-site":            "none",
	"Sec-fetch-user":            "?1",
	"Upgrade-Insecure-Requests": "1",
	"User-Agent":                "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Sec-ch-ua":                 "Google Chrome;v=131, Chromium;v=131, Not_A Brand;v=24",
	"Sec-ch-ua-mobile":          "?0",
	"Sec-ch-ua-platform":        "Windows",
}

func requestHeaders(key, secret string) map[string]string {
	headers := make(map[string]string, len(browserHeaders)+2)
	for k, v := range browserHeaders {
		headers[k] = v
	}
	headers["X-Key"] = key
	headers["X-Secret"] = secret
	return headers
}
