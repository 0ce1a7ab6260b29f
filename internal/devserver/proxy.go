package devserver

import (
	"bytes"
	"io"
	"mime"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"

	"github.com/conneroisu/themepack/internal/logging"
)

// RoutePrefix is reserved for the dev server's own endpoints.
const RoutePrefix = "/__themepack"

// reloadScriptTag is injected into proxied HTML pages.
const reloadScriptTag = `<script src="` + RoutePrefix + `/reload.js"></script>`

// reloadScript reconnects on close, swaps stylesheets on "css" messages
// and reloads the page otherwise.
const reloadScript = `(function () {
  var url = (location.protocol === "https:" ? "wss://" : "ws://") + location.host + "` + RoutePrefix + `/ws";
  function connect() {
    var ws = new WebSocket(url);
    ws.onmessage = function (event) {
      var msg = JSON.parse(event.data);
      if (msg.type === "css" && msg.styles && msg.styles.length) {
        var links = document.querySelectorAll('link[rel="stylesheet"]');
        var swapped = false;
        links.forEach(function (link) {
          if (/\/css\/theme-[^/]*\.css/.test(link.href)) {
            link.href = msg.styles[0];
            swapped = true;
          }
        });
        if (!swapped) location.reload();
      } else if (msg.type === "error") {
        console.error("[themepack] build failed:", msg.error);
      } else {
        location.reload();
      }
    };
    ws.onclose = function () { setTimeout(connect, 1000); };
  }
  connect();
})();
`

// NewProxy forwards requests to target and injects the reload client into
// HTML responses.
func NewProxy(target *url.URL, logger logging.Logger) *httputil.ReverseProxy {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	logger = logger.WithComponent("proxy")

	return &httputil.ReverseProxy{
		Rewrite: func(r *httputil.ProxyRequest) {
			r.SetURL(target)
			r.SetXForwarded()
			// Injection needs an uncompressed body.
			r.Out.Header.Del("Accept-Encoding")
		},
		ModifyResponse: injectReloadClient,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Warn(r.Context(), err, "proxy request failed", "path", r.URL.Path)
			http.Error(w, "themepack: CMS at "+target.String()+" is unreachable: "+err.Error(), http.StatusBadGateway)
		},
	}
}

func injectReloadClient(resp *http.Response) error {
	if resp.Header.Get("Content-Encoding") != "" {
		return nil
	}
	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || mediaType != "text/html" {
		return nil
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return err
	}

	body = InjectReloadScript(body)
	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	resp.Header.Set("Content-Length", strconv.Itoa(len(body)))
	return nil
}

// InjectReloadScript inserts the reload client before the last </body>,
// or appends it when there is none.
func InjectReloadScript(body []byte) []byte {
	idx := bytes.LastIndex(asciiLower(body), []byte("</body>"))
	if idx < 0 {
		return append(body, reloadScriptTag...)
	}

	out := make([]byte, 0, len(body)+len(reloadScriptTag))
	out = append(out, body[:idx]...)
	out = append(out, reloadScriptTag...)
	return append(out, body[idx:]...)
}

// asciiLower lower-cases ASCII letters only, keeping byte offsets intact.
func asciiLower(b []byte) []byte {
	out := make([]byte, len(b))
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return out
}
