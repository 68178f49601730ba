package api

import (
	"crypto/subtle"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
)

// tokenAuth guards the protected admin routes (record reads and writes, the
// listing, trie inspection and the audit log) with the shared secret from
// API_AUTH_TOKEN. The UDP gossip port stays deliberately open — there the
// proof-of-work admission rule is the only gate — so this token is the sole
// thing separating "peer on the mesh" from "operator of this node".
type tokenAuth struct {
	token      []byte
	failClosed bool
	nodeID     string
}

// NewAuth builds the middleware for one node. Without a configured token the
// behavior splits by mode: development stays open, release mode fails closed
// and refuses every protected route until a token is set, rather than
// silently exposing the store.
func NewAuth(nodeID string) gin.HandlerFunc {
	a := &tokenAuth{
		token:  []byte(os.Getenv("API_AUTH_TOKEN")),
		nodeID: nodeID,
	}
	if len(a.token) == 0 {
		if os.Getenv("GIN_MODE") == "release" {
			a.failClosed = true
			log.Println("[Admin] API_AUTH_TOKEN is not set in release mode; " +
				"protected admin routes are disabled until a token is configured")
		} else {
			log.Println("[Admin] API_AUTH_TOKEN is not set; admin routes are open (dev mode)")
		}
	}
	return a.middleware
}

func (a *tokenAuth) middleware(c *gin.Context) {
	if len(a.token) == 0 {
		if a.failClosed {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error":  "protected admin routes disabled: API_AUTH_TOKEN is not configured on this node",
				"nodeId": a.nodeID,
			})
			return
		}
		c.Next()
		return
	}

	presented := presentedToken(c)
	if presented == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error":  "missing credentials",
			"hint":   "Authorization: Bearer <API_AUTH_TOKEN>, or ?token= for stream clients",
			"nodeId": a.nodeID,
		})
		return
	}

	// Constant-time comparison to prevent timing-based token enumeration.
	if subtle.ConstantTimeCompare([]byte(presented), a.token) != 1 {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error":  "invalid token",
			"nodeId": a.nodeID,
		})
		return
	}

	c.Next()
}

// presentedToken accepts the standard bearer header, falling back to a
// ?token= query parameter because browser websocket clients cannot set
// request headers.
func presentedToken(c *gin.Context) string {
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return c.Query("token")
}
