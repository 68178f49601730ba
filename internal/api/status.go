package api

import (
	"html/template"
	"net/http"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/gin-gonic/gin"
)

// approxBytesPerRecord is a rough live-heap cost of one stored record: the
// proof itself plus up to 32 prefix entries in each of the digest and count
// maps. Good enough for an operator gauge, not an accounting number.
const approxBytesPerRecord = 3600

var statusTemplate = template.Must(template.New("status").Parse(`<!DOCTYPE html>
<html>
<head>
<title>proofmesh node {{.NodeID}}</title>
<style>
  body { font-family: monospace; margin: 2em; background: #111; color: #ddd; }
  h1 { color: #6cf; }
  table { border-collapse: collapse; }
  td, th { border: 1px solid #444; padding: 4px 10px; text-align: left; }
  .digest { color: #fc6; }
</style>
</head>
<body>
<h1>proofmesh node</h1>
<table>
  <tr><th>Node ID</th><td>{{.NodeID}}</td></tr>
  <tr><th>Gossip address</th><td>{{.GossipAddr}}</td></tr>
  <tr><th>Uptime</th><td>{{.Uptime}}</td></tr>
  <tr><th>Stored records</th><td>{{.Records}}</td></tr>
  <tr><th>Root digest</th><td class="digest">{{printf "%#016x" .RootDigest}}</td></tr>
  <tr><th>Left child digest</th><td class="digest">{{printf "%#016x" .LeftDigest}}</td></tr>
  <tr><th>Right child digest</th><td class="digest">{{printf "%#016x" .RightDigest}}</td></tr>
  <tr><th>Approx. index memory</th><td>{{.Memory}}</td></tr>
</table>
<h1>peers</h1>
<table>
  <tr><th>host:port</th></tr>
  {{range .Peers}}<tr><td>{{.}}</td></tr>{{else}}<tr><td>(none)</td></tr>{{end}}
</table>
<h1>gossip counters</h1>
<table>
  <tr><th>heartbeats sent</th><td>{{.Stats.HeartbeatsSent}}</td></tr>
  <tr><th>expand in / out</th><td>{{.Stats.ExpandIn}} / {{.Stats.ExpandOut}}</td></tr>
  <tr><th>request in / out</th><td>{{.Stats.RequestIn}} / {{.Stats.RequestOut}}</td></tr>
  <tr><th>key in / out</th><td>{{.Stats.KeyIn}} / {{.Stats.KeyOut}}</td></tr>
  <tr><th>admitted / replaced</th><td>{{.Stats.Admitted}} / {{.Stats.Replaced}}</td></tr>
  <tr><th>rejected (invalid/dup/weaker/full)</th>
      <td>{{.Stats.RejectedInvalid}} / {{.Stats.RejectedDuplicate}} / {{.Stats.RejectedWeaker}} / {{.Stats.RejectedFull}}</td></tr>
  <tr><th>dropped (short/length/opcode)</th>
      <td>{{.Stats.DroppedShort}} / {{.Stats.DroppedLength}} / {{.Stats.DroppedOpcode}}</td></tr>
  <tr><th>send errors</th><td>{{.Stats.SendErrors}}</td></tr>
</table>
</body>
</html>
`))

// handleStatusPage renders the operator status page through template
// substitution.
func (h *APIHandler) handleStatusPage(c *gin.Context) {
	h1, h2, h3 := h.index.Root()
	records := h.index.Len()

	hostPorts := make([]string, 0, len(h.peerSet))
	for _, p := range h.peerSet {
		hostPorts = append(hostPorts, p.HostPort)
	}

	data := gin.H{
		"NodeID":      h.nodeID,
		"GossipAddr":  h.gossipAddr,
		"Uptime":      time.Since(h.startedAt).Round(time.Second).String(),
		"Records":     records,
		"RootDigest":  h1,
		"LeftDigest":  h2,
		"RightDigest": h3,
		"Memory":      (datasize.ByteSize(records) * approxBytesPerRecord).HumanReadable(),
		"Peers":       hostPorts,
		"Stats":       h.stats.Snapshot(),
	}

	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	if err := statusTemplate.Execute(c.Writer, data); err != nil {
		c.String(http.StatusInternalServerError, "status template failed: %v", err)
	}
}
