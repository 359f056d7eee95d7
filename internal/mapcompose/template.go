package mapcompose

import "html/template"

var mapTemplate = template.Must(template.New("map").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<link rel="stylesheet" href="https://unpkg.com/leaflet@1.9.4/dist/leaflet.css">
<script src="https://unpkg.com/leaflet@1.9.4/dist/leaflet.js"></script>
<style>
  html, body, #map { height: 100%; margin: 0; }
  .legend { background: white; padding: 8px 12px; border-radius: 4px; box-shadow: 0 1px 4px rgba(0,0,0,0.3); font: 13px sans-serif; }
  .legend .swatch { display: inline-block; width: 10px; height: 10px; border-radius: 50%; margin-right: 6px; }
  .legend .meta { color: #666; margin-top: 4px; }
</style>
</head>
<body>
<div id="map"></div>
<script>
var data = {{.Payload}};

var map = L.map("map");
map.fitBounds([[{{.Viewport.MinLat}}, {{.Viewport.MinLon}}], [{{.Viewport.MaxLat}}, {{.Viewport.MaxLon}}]]);

L.tileLayer("{{.Style.TileURL}}", {
  attribution: "{{.Style.Attribution}}",
  maxZoom: 19
}).addTo(map);

data.overlays.forEach(function (leg) {
  L.polyline(leg.points, {
    color: "{{.Style.LineColor}}",
    weight: {{.Style.LineWeight}},
    opacity: 0.8
  }).addTo(map);
});

data.markers.forEach(function (m, i) {
  var lines = ["<strong>" + (i + 1) + ". " + m.label + "</strong>", m.address];
  if (m.annotations) {
    Object.keys(m.annotations).sort().forEach(function (k) {
      lines.push(k + ": " + m.annotations[k]);
    });
  }
  L.circleMarker([m.lat, m.lon], {
    radius: 8,
    color: m.color,
    fillColor: m.color,
    fillOpacity: 0.9
  }).addTo(map).bindPopup(lines.join("<br>"));
});

var legend = L.control({ position: "bottomright" });
legend.onAdd = function () {
  var div = L.DomUtil.create("div", "legend");
  var rows = data.legend.map(function (e) {
    return '<div><span class="swatch" style="background:' + e.color + '"></span>' + e.group + " (" + e.count + ")</div>";
  });
  rows.push('<div class="meta">generated <span id="generated-at">{{.GeneratedAt}}</span></div>');
  div.innerHTML = rows.join("");
  return div;
};
legend.addTo(map);
</script>
</body>
</html>
`))
