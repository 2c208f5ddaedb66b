package worker

import "net/http"

// OfflineTitle is the title of the page served to failed document navigations.
const OfflineTitle = "PSE Dashboard - Offline"

const offlineHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>` + OfflineTitle + `</title>
  <style>
    body {
      font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
      background: linear-gradient(135deg, #1e3c72 0%, #2a5298 100%);
      color: #fff;
      display: flex;
      align-items: center;
      justify-content: center;
      min-height: 100vh;
      margin: 0;
      text-align: center;
    }
    .offline-card {
      background: rgba(255, 255, 255, 0.1);
      border-radius: 16px;
      padding: 40px;
      max-width: 420px;
    }
    h1 { font-size: 1.8em; margin-bottom: 12px; }
    p { opacity: 0.9; line-height: 1.5; }
    button {
      margin-top: 20px;
      padding: 12px 28px;
      border: none;
      border-radius: 8px;
      background: #fff;
      color: #1e3c72;
      font-size: 1em;
      cursor: pointer;
    }
  </style>
</head>
<body>
  <div class="offline-card">
    <h1>Offline ka ngayon</h1>
    <p>Walang internet connection. You are offline; the PSE Dashboard will load again once the connection is back.</p>
    <button id="reload" onclick="window.location.reload()">Subukan muli / Retry</button>
  </div>
</body>
</html>
`

// Body of the synthetic API error.
const apiUnavailableJSON = `{"error":"Offline - walang koneksyon sa internet / No internet connection","cached":false}`

func offlinePage() *Response {
	return &Response{
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": {"text/html; charset=utf-8"}},
		Body:   []byte(offlineHTML),
		Source: SourceOfflinePage,
	}
}

func apiUnavailable() *Response {
	return &Response{
		Status: http.StatusServiceUnavailable,
		Header: http.Header{"Content-Type": {"application/json"}},
		Body:   []byte(apiUnavailableJSON),
		Source: SourceUnavailable,
	}
}

func staticUnavailable() *Response {
	return &Response{
		Status: http.StatusServiceUnavailable,
		Header: http.Header{"Content-Type": {"text/plain; charset=utf-8"}},
		Body:   []byte("Offline"),
		Source: SourceUnavailable,
	}
}
