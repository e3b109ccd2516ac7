package spam

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterRejectsPromotionalContent(t *testing.T) {
	t.Parallel()

	f := New()
	cases := []struct {
		name  string
		title string
		desc  string
		url   string
		rule  string
	}{
		{
			name:  "amazon listicle",
			title: "42 useful travel products you can buy on Amazon",
			url:   "https://example.com/travel/products",
			rule:  RuleListicle,
		},
		{
			name:  "deals roundup",
			title: "The best early Prime Day laptop deals at Amazon",
			rule:  RuleShopping,
		},
		{
			name:  "percent off with price",
			title: "Noise-cancelling headphones drop to $248, 40% off right now",
			rule:  RuleShopping,
		},
		{
			name:  "affiliate disclaimer in body",
			title: "This blender changed my mornings",
			desc:  "We may earn a commission when you shop through links on our site.",
			rule:  RuleAffiliate,
		},
		{
			name:  "disclaimer before commission",
			title: "The desk chair I keep recommending",
			desc:  "If you buy through our links, we may earn a commission.",
			rule:  RuleAffiliate,
		},
		{
			name:  "listicle with price",
			title: "12 gadgets under $50 you should buy before summer",
			rule:  RuleListicle,
		},
		{
			name:  "gift guide",
			title: "Holiday gift guide: what to get the coffee lover",
			rule:  RuleGiftGuide,
		},
		{
			name:  "blocked url path",
			title: "Storm season essentials",
			url:   "https://news.example.com/shopping/storm-kit",
			rule:  RuleURLPath,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := f.Check(tc.title, tc.desc, tc.url)
			assert.False(t, v.Accepted)
			assert.Equal(t, tc.rule, v.Rule)
			assert.NotEmpty(t, v.Match)
		})
	}
}

func TestFilterAcceptsNewsFraming(t *testing.T) {
	t.Parallel()

	f := New()
	titles := []string{
		"10 things you need to know about the trade deal",
		"Best Buy reports weaker holiday earnings",
		"Earthquake hits coastal town",
		"5 takeaways from the Senate hearing",
		"Top 3 candidates make their case in final debate",
		"Union leaders reach deal with automakers",
		"Black Friday sales fall as shoppers pull back",
		"Tariffs knock 10% off China's exports",
		"Leaders hail top trade deals at G20 summit",
		"FTC sues retailer over undisclosed affiliate links",
		"Best places to buy a home in 2026, report finds",
		"Hurricane season: 5 things you need to know",
		"Top deals of the year: utility signs $4 billion merger",
	}
	for _, title := range titles {
		v := f.Check(title, "", "https://news.example.com/world/story")
		assert.Truef(t, v.Accepted, "expected %q to pass, got rule %s (%s)", title, v.Rule, v.Match)
	}
}

func TestFilterIgnoresAffiliateWordingInTitle(t *testing.T) {
	t.Parallel()

	f := New()
	v := f.Check("Regulator says we may earn a commission was misleading, shop owners buy ads", "", "")
	assert.True(t, v.Accepted, "rule %s (%s)", v.Rule, v.Match)

	v = f.Check("Regulator fines publisher", "FTC says the site hid affiliate links from readers.", "")
	assert.True(t, v.Accepted, "rule %s (%s)", v.Rule, v.Match)
}

func TestFilterExtraBlockedPaths(t *testing.T) {
	t.Parallel()

	f := New("/partner-content/")
	v := f.Check("City council approves budget", "", "https://example.com/partner-content/budget")
	assert.False(t, v.Accepted)
	assert.Equal(t, "/partner-content/", v.Match)

	v = f.Check("City council approves budget", "", "://not a url")
	assert.True(t, v.Accepted)
}
