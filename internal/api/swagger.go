package api

import (
	"encoding/base64"
	"net/http"
)

const swaggerCDN = "https://cdn.jsdelivr.net/npm/swagger-ui-dist@5"

// SwaggerHandler serves an interactive Swagger UI with the OpenAPI document inlined and
// role presets for dev-mode tokens.
func (s *Server) SwaggerHandler(w http.ResponseWriter, r *http.Request) {
	js, err := openAPIDocument()
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "OpenAPI not available", err.Error(), r.URL.Path)
		return
	}
	b64 := base64.StdEncoding.EncodeToString(js)
	html := `<!DOCTYPE html><html lang="en"><head>
    <title>Gridwatch Console</title>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width,initial-scale=1">
    <link rel="stylesheet" href="` + swaggerCDN + `/swagger-ui.css" />
    <style>body{margin:0} .topbar{display:none} .cfg{position:fixed;top:8px;right:8px;padding:8px;background:#fff;border:1px solid #ddd;z-index:9}</style>
    </head><body>
    <div class="cfg">
      <div><strong>Auth Presets</strong></div>
      <div><label>Role: <input id="role" value="system_admin"></label></div>
      <div><label>Region: <input id="region"></label></div>
      <div><label>District: <input id="district"></label></div>
      <div><label>Bearer token: <input id="token" style="width:240px"></label></div>
      <div><label><input type="checkbox" id="useDev"> Use dev role:region:district token</label></div>
      <button onclick="saveAuth()">Save</button>
    </div>
    <div id="swagger-ui"></div>
    <script src="` + swaggerCDN + `/swagger-ui-bundle.js"></script>
    <script src="` + swaggerCDN + `/swagger-ui-standalone-preset.js"></script>
    <script>
    const spec = JSON.parse(atob('` + b64 + `'));
    const keys = ['role','region','district','token'];
    function loadAuth(){
      const p = {};
      keys.forEach(k => { p[k] = localStorage.getItem(k)||''; document.getElementById(k).value = p[k]; });
      p.useDev = localStorage.getItem('useDev')==='1';
      document.getElementById('useDev').checked = p.useDev;
      return p;
    }
    function saveAuth(){
      keys.forEach(k => localStorage.setItem(k, document.getElementById(k).value));
      localStorage.setItem('useDev', document.getElementById('useDev').checked?'1':'0');
      alert('Saved');
    }
    loadAuth();
    const ui = SwaggerUIBundle({
        spec: spec,
        dom_id: '#swagger-ui',
        deepLinking: true,
        presets: [SwaggerUIBundle.presets.apis, SwaggerUIStandalonePreset],
        layout: "BaseLayout",
        requestInterceptor: (req) => {
            const p = loadAuth();
            if (p.useDev && p.role) { req.headers['Authorization'] = 'Bearer ' + [p.role, p.region, p.district].join(':').replace(/:+$/, ''); }
            else if (p.token) { req.headers['Authorization'] = 'Bearer ' + p.token; }
            return req;
        }
    });
    </script>
    </body></html>`
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(html))
}
