// Package spam rejects promotional and listicle-shopping content before it
// reaches clustering. Every text rule is conjunctive: a primary pattern only
// rejects when a second, independent commerce signal (a retailer, a retail
// price or a purchase call) appears in the same text.
package spam

import (
	"net/url"
	"regexp"
	"strings"
)

// Rule names reported in verdicts and audit logs.
const (
	RuleShopping  = "shopping_language"
	RuleAffiliate = "affiliate_cta"
	RuleListicle  = "listicle_purchase"
	RuleGiftGuide = "gift_guide"
	RuleURLPath   = "url_path"
)

// DefaultBlockedPaths are URL path segments that only host commerce content.
var DefaultBlockedPaths = []string{"deals", "shopping", "coupons", "sponsored", "affiliate", "gift-guide", "gift-guides"}

var (
	// discountExpr are sales phrases; on their own they also appear in
	// business and trade reporting.
	discountExpr = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(best|top|early|great|hot|huge|today'?s|daily|epic)\s+(\w+\s+){0,2}deals\b`),
		regexp.MustCompile(`(?i)\b\d{1,2}\s?%\s?off\b`),
		regexp.MustCompile(`(?i)\b(promo|coupon|discount)\s+codes?\b`),
		regexp.MustCompile(`(?i)\b(prime day|black friday|cyber monday)\b.*\b(deals?|sales?|discounts?)\b`),
		regexp.MustCompile(`(?i)\blowest price (ever|yet|of the year)\b`),
		regexp.MustCompile(`(?i)\bdeal of the (day|week)\b`),
		regexp.MustCompile(`(?i)\bon sale\b`),
	}

	retailerExpr = regexp.MustCompile(`(?i)\b(on|at|from|via)\s+(amazon|walmart|target|best buy|costco|ebay|etsy|wayfair|home depot|aliexpress|temu)\b`)
	priceExpr    = regexp.MustCompile(`[$£€]\s?\d+(,\d{3})*(\.\d{2})?`)
	// magnitudeExpr marks an amount as an economic figure rather than a price.
	magnitudeExpr = regexp.MustCompile(`(?i)^\s?(bn|billion|m\b|mn|million|trillion|tn|k\b|thousand)`)
	purchaseExpr  = regexp.MustCompile(`(?i)\b((you can|to|should|worth|must|where to|ways to|before you|we'd)\s+(buy|shop|purchase)|(buy|shop|order|grab|snag)\s+(it|them|this|one|yours)?\s*(now|today|here|online)|add to cart)\b`)

	// affiliateExpr only runs over descriptions, where disclosure boilerplate
	// lives; each pattern pairs the affiliate wording with a purchase action.
	affiliateExpr = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bwe may (earn|receive) (a )?(small )?commission\b.*\b(buy|shop|purchase|click)`),
		regexp.MustCompile(`(?i)\b(buy|shop|purchase|click)\b.*\bwe may (earn|receive) (a )?(small )?commission\b`),
		regexp.MustCompile(`(?i)\b(buy|shop|order)\s+(it|them|this|one|yours)?\s*(now|today|here)\s+(on|at|from)\s+(amazon|walmart|target|best buy|costco|ebay|etsy|wayfair|home depot)\b`),
		regexp.MustCompile(`(?i)\bcheck (the )?price (on|at)\s+(amazon|walmart|target|best buy|costco|ebay|etsy|wayfair|home depot)\b`),
	}

	// listicleLead is a quantity or superlative at the start of a title.
	listicleLead = regexp.MustCompile(`(?i)^\s*(the\s+)?(\d{1,3}|top\s+\d{1,3}|best|cheapest|greatest)\b`)

	giftGuideExpr = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bgift (guide|ideas?)\b`),
		regexp.MustCompile(`(?i)\bgifts? for (him|her|dad|mom|men|women|kids|teens|everyone|gamers|travelers)\b`),
		regexp.MustCompile(`(?i)\bstocking stuffers\b`),
	}
)

// Verdict is the filter decision for one article.
type Verdict struct {
	Accepted bool
	Rule     string
	Match    string
}

// Filter evaluates pattern rules over title, description and URL.
type Filter struct {
	blockedPaths map[string]struct{}
}

// New builds a filter; extraPaths extend DefaultBlockedPaths.
func New(extraPaths ...string) *Filter {
	paths := make(map[string]struct{}, len(DefaultBlockedPaths)+len(extraPaths))
	for _, p := range append(append([]string{}, DefaultBlockedPaths...), extraPaths...) {
		p = strings.Trim(strings.ToLower(strings.TrimSpace(p)), "/")
		if p != "" {
			paths[p] = struct{}{}
		}
	}
	return &Filter{blockedPaths: paths}
}

// Check returns an accepting verdict unless one of the rules fires.
func (f *Filter) Check(title, description, rawURL string) Verdict {
	if match := f.blockedSegment(rawURL); match != "" {
		return Verdict{Rule: RuleURLPath, Match: match}
	}

	text := title + "\n" + description
	if m := firstMatch(discountExpr, text); m != "" {
		if signal := commerceSignal(text); signal != "" {
			return Verdict{Rule: RuleShopping, Match: m + " + " + signal}
		}
	}
	if m := firstMatch(affiliateExpr, description); m != "" {
		return Verdict{Rule: RuleAffiliate, Match: m}
	}
	if lead := listicleLead.FindString(title); lead != "" {
		if verb := purchaseExpr.FindString(title); verb != "" {
			if signal := listicleSignal(title); signal != "" {
				return Verdict{Rule: RuleListicle, Match: strings.TrimSpace(lead) + " + " + verb + " + " + signal}
			}
		}
	}
	if m := firstMatch(giftGuideExpr, title); m != "" {
		return Verdict{Rule: RuleGiftGuide, Match: m}
	}

	return Verdict{Accepted: true}
}

// commerceSignal returns the first retailer, retail price or purchase call.
func commerceSignal(text string) string {
	if m := retailerExpr.FindString(text); m != "" {
		return m
	}
	if m := retailPrice(text); m != "" {
		return m
	}
	return purchaseExpr.FindString(text)
}

// listicleSignal is the product context of a listicle. A purchase verb is
// already required, and "to buy" alone also frames housing and market stories.
func listicleSignal(title string) string {
	if m := retailerExpr.FindString(title); m != "" {
		return m
	}
	if m := retailPrice(title); m != "" {
		return m
	}
	return firstMatch(discountExpr, title)
}

func retailPrice(text string) string {
	for _, loc := range priceExpr.FindAllStringIndex(text, -1) {
		if magnitudeExpr.MatchString(text[loc[1]:]) {
			continue
		}
		return text[loc[0]:loc[1]]
	}
	return ""
}

func (f *Filter) blockedSegment(rawURL string) string {
	if rawURL == "" || len(f.blockedPaths) == 0 {
		return ""
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	for _, segment := range strings.Split(strings.ToLower(parsed.Path), "/") {
		if _, ok := f.blockedPaths[segment]; ok {
			return "/" + segment + "/"
		}
	}
	return ""
}

func firstMatch(exprs []*regexp.Regexp, text string) string {
	for _, expr := range exprs {
		if m := expr.FindString(text); m != "" {
			return m
		}
	}
	return ""
}
