package automation

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Signature maps a marketing automation or CRM tool to substrings that
// reveal it in page markup. Patterns are matched lower-cased.
type Signature struct {
	Name     string   `yaml:"name"`
	Patterns []string `yaml:"patterns"`
}

// DefaultSignatures returns the built-in tool table.
func DefaultSignatures() []Signature {
	return []Signature{
		{Name: "HubSpot", Patterns: []string{"js.hs-scripts.com", "js.hsforms.net", "js.hs-analytics.net", "hs-banner.com", "_hsq.push"}},
		{Name: "Salesforce Pardot", Patterns: []string{"pi.pardot.com", "go.pardot.com", "piaid ="}},
		{Name: "Marketo", Patterns: []string{"munchkin.marketo.net", "mktoforms2", "marketo.com/js"}},
		{Name: "ActiveCampaign", Patterns: []string{"trackcmp.net", "activehosted.com", "diffuser-cdn.app-us1.com"}},
		{Name: "Mailchimp", Patterns: []string{"chimpstatic.com", "list-manage.com", "mailchimp.com/embed"}},
		{Name: "Klaviyo", Patterns: []string{"static.klaviyo.com", "klaviyo.com/onsite"}},
		{Name: "Intercom", Patterns: []string{"widget.intercom.io", "js.intercomcdn.com", "intercomsettings"}},
		{Name: "Drift", Patterns: []string{"js.driftt.com", "drift.load("}},
		{Name: "Zoho", Patterns: []string{"salesiq.zoho.com", "zohopublic.com", "zcampaigns"}},
		{Name: "Keap", Patterns: []string{"infusionsoft.com", "keap-app.com", "infusionsoft.app"}},
		{Name: "HighLevel", Patterns: []string{"msgsndr.com", "leadconnectorhq.com", "gohighlevel.com"}},
		{Name: "Podium", Patterns: []string{"connect.podium.com", "podium-widget"}},
		{Name: "Birdeye", Patterns: []string{"birdeye.com/embed", "birdeye-widget"}},
		{Name: "Pipedrive", Patterns: []string{"leadbooster-chat.pipedrive.com", "webforms.pipedrive.com"}},
		{Name: "Constant Contact", Patterns: []string{"ctctcdn.com", "constantcontact.com/js"}},
		{Name: "Freshworks", Patterns: []string{"freshchat.com", "freshworks.com/widget", "wchat.freshchat"}},
		{Name: "Zendesk", Patterns: []string{"static.zdassets.com", "zopim.com", "zendesk.com/embeddable"}},
		{Name: "LiveChat", Patterns: []string{"cdn.livechatinc.com", "__lc.license"}},
		{Name: "ServiceTitan", Patterns: []string{"servicetitan.com", "st-scheduler"}},
		{Name: "Housecall Pro", Patterns: []string{"housecallpro.com", "hcp-booking"}},
		{Name: "Jobber", Patterns: []string{"getjobber.com", "jobber-work-request"}},
	}
}

type signatureFile struct {
	Tools []Signature `yaml:"tools"`
}

// LoadSignatures reads a YAML tool table and merges it over the defaults.
// Entries whose name matches a built-in tool (case-insensitively) replace
// its patterns; others are appended. An empty path returns the defaults.
func LoadSignatures(path string) ([]Signature, error) {
	sigs := DefaultSignatures()
	if path == "" {
		return sigs, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "automation: read signatures %s", path)
	}

	var file signatureFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, eris.Wrapf(err, "automation: parse signatures %s", path)
	}

	index := make(map[string]int, len(sigs))
	for i, s := range sigs {
		index[strings.ToLower(s.Name)] = i
	}
	for _, s := range file.Tools {
		name := strings.TrimSpace(s.Name)
		if name == "" || len(s.Patterns) == 0 {
			return nil, eris.Errorf("automation: signature entry needs a name and patterns (got %q)", s.Name)
		}
		if i, ok := index[strings.ToLower(name)]; ok {
			sigs[i].Patterns = s.Patterns
			continue
		}
		index[strings.ToLower(name)] = len(sigs)
		sigs = append(sigs, Signature{Name: name, Patterns: s.Patterns})
	}
	return normalize(sigs), nil
}

func normalize(sigs []Signature) []Signature {
	out := make([]Signature, 0, len(sigs))
	for _, s := range sigs {
		pats := make([]string, 0, len(s.Patterns))
		for _, p := range s.Patterns {
			if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
				pats = append(pats, p)
			}
		}
		out = append(out, Signature{Name: s.Name, Patterns: pats})
	}
	return out
}
