package core

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"netsentry/models"
)

// Verdict is the classification result for one URL observation.
type Verdict struct {
	Suspicious bool
	// Level is one of the models.ThreatLevel* constants. Empty means the
	// classifier only produced the binary flag and the aggregator should
	// apply its default mapping.
	Level   string
	Details *models.ThreatDetails
}

// Classifier assigns a threat verdict to a URL observation. The engine calls
// it for events the feed did not pre-classify; production and test
// implementations are swappable.
type Classifier interface {
	Classify(rawURL, protocol string) Verdict
}

// suspiciousPorts maps well-known risky destination ports to a label.
var suspiciousPorts = map[string]string{
	"22":   "SSH",
	"23":   "Telnet",
	"445":  "SMB",
	"1080": "SOCKS proxy",
	"3389": "RDP",
	"4444": "Metasploit",
	"5800": "VNC",
	"5900": "VNC",
	"6667": "IRC",
	"9001": "Tor",
}

// badDomainKeywords flag hostnames that advertise themselves in the demo
// traffic corpus.
var badDomainKeywords = []string{"malware", "phishing", "suspicious"}

// HeuristicClassifier flags plain-HTTP traffic, connections to risky ports,
// and known-bad hostname keywords. It is deliberately simple; a production
// deployment would substitute a real intelligence-backed implementation
// behind the same interface.
type HeuristicClassifier struct{}

func (HeuristicClassifier) Classify(rawURL, protocol string) Verdict {
	u, err := url.Parse(rawURL)
	if err != nil {
		// Unparseable URLs are left unclassified rather than flagged.
		return Verdict{}
	}

	host := strings.ToLower(u.Hostname())
	for _, keyword := range badDomainKeywords {
		if strings.Contains(host, keyword) {
			return Verdict{
				Suspicious: true,
				Level:      models.ThreatLevelHigh,
				Details: &models.ThreatDetails{
					Type:           "Suspicious URL",
					Description:    fmt.Sprintf("Hostname '%s' matches known-bad keyword '%s'", host, keyword),
					Recommendation: "Block access and scan affected devices for malware",
					DetectedAt:     time.Now().UTC(),
					Method:         "GET",
				},
			}
		}
	}

	if portLabel, risky := suspiciousPorts[u.Port()]; risky {
		return Verdict{
			Suspicious: true,
			Level:      models.ThreatLevelHigh,
			Details: &models.ThreatDetails{
				Type:           "Suspicious Port",
				Description:    fmt.Sprintf("Connection to suspicious port %s (%s)", u.Port(), portLabel),
				Recommendation: "Verify the destination service and block if unexpected",
				DetectedAt:     time.Now().UTC(),
				Method:         "GET",
			},
		}
	}

	if u.Scheme == "http" || protocol == models.ProtocolHTTP {
		return Verdict{
			Suspicious: true,
			Level:      models.ThreatLevelMedium,
			Details: &models.ThreatDetails{
				Type:           "Insecure Connection",
				Description:    "Insecure HTTP connection without transport encryption",
				Recommendation: "Prefer HTTPS endpoints for this destination",
				DetectedAt:     time.Now().UTC(),
				Method:         "GET",
			},
		}
	}

	return Verdict{Level: models.ThreatLevelSafe}
}

// staticClassifier returns the same verdict for every URL. Test helper.
type staticClassifier struct {
	verdict Verdict
}

func (c staticClassifier) Classify(string, string) Verdict {
	return c.verdict
}
