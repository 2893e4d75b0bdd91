package runner

import (
	"fmt"
	"sort"
	"strings"

	"github.com/siteintel/analyzer/internal/analysis"
)

// Prompt construction is deterministic: the same page content and
// params always produce byte-identical prompts, so arbitration over
// repeated runs stays reproducible.

const (
	maxContextChars  = 3000
	maxAuditChars    = 4000
	maxLinksInPrompt = 20
)

func seoSystemPrompt() string {
	return `You are an SEO expert. Analyze the website and provide recommendations on:
- Title tag optimization
- Meta description effectiveness
- Content structure and headers
- Keyword usage and density
- Page loading insights (based on content size)
- Mobile-friendliness indicators
- Content quality and readability
Provide actionable SEO recommendations in markdown format.`
}

func auditSystemPrompt() string {
	return `You are a website auditor. Provide a comprehensive audit covering:

**Technical Aspects:**
- Page structure and navigation
- Content organization
- User experience issues

**Business Aspects:**
- Clear value proposition
- Call-to-action effectiveness
- Trust signals and credibility
- Conversion optimization opportunities

**Content Quality:**
- Message clarity
- Professional presentation
- Completeness of information

**Recommendations:**
- Priority improvements
- Quick wins
- Long-term strategies

Rate each section 1-10 and provide actionable recommendations.`
}

func contentSystemPrompt(contentType string) string {
	return fmt.Sprintf(`You are a content marketing strategist. Based on the website analysis,
generate 10 %s content ideas that would:
- Attract the target audience
- Showcase company expertise
- Drive organic traffic
- Support business goals
- Be engaging and shareable

For each idea, provide:
- Title
- Brief description
- Target audience
- Expected outcome

If website content is limited, use the domain name and any available information to make educated assumptions about the business.
Respond in structured markdown format.`, contentType)
}

func socialSystemPrompt(platforms []string) string {
	return fmt.Sprintf(`You are a social media strategist. Based on the website analysis, create a social media strategy for %s:

For each platform, provide:
- Content themes and topics
- Posting frequency recommendations
- Content format suggestions (text, images, videos)
- Engagement strategies
- Hashtag recommendations
- Key performance indicators

Also suggest:
- Cross-platform content repurposing
- Community building tactics
- Influencer collaboration opportunities

If website content is limited, use the domain name to infer business type and create appropriate strategies.
Tailor recommendations to each platform's unique audience and features.`, strings.Join(platforms, ", "))
}

func emailSystemPrompt(campaignType string) string {
	return fmt.Sprintf(`You are an email marketing specialist. Create a %s email campaign based on the website analysis:

Provide:
- Email sequence outline (3-5 emails)
- Subject lines for each email
- Email content structure
- Call-to-action recommendations
- Personalization opportunities
- A/B testing suggestions

If website content is limited, use the domain name to infer business type and create appropriate campaigns.
Make emails engaging, valuable, and aligned with the company's brand voice.`, campaignType)
}

func contactSystemPrompt() string {
	return `You are a lead generation specialist. Extract and organize all contact information from the website including:
- Email addresses
- Phone numbers
- Physical addresses
- Social media profiles
- Contact forms
- Key personnel names and roles

Also identify potential lead magnets like:
- Free downloads
- Newsletter signups
- Free trials
- Consultation offers

If website content is limited, note this limitation and provide general recommendations for lead generation.
Respond in structured JSON format.`
}

func brochureSystemPrompt(humorous bool) string {
	tone := "short brochure"
	if humorous {
		tone = "short humorous, entertaining, jokey brochure"
	}
	return fmt.Sprintf(`You are an assistant that analyzes the contents of a company website
and creates a %s about the company for prospective customers, investors and recruits. Respond in markdown.
Include details of company culture, customers and careers/jobs if you have the information.

If website content is limited, use the domain name and company name to create a professional brochure template.`, tone)
}

func competitorsSystemPrompt() string {
	return `You are a business analyst specializing in competitive analysis.
Compare the main company website with competitor websites and provide insights on:
- Unique value propositions
- Service/product differences
- Website quality and user experience
- Content strategy differences
- Competitive advantages and gaps

If any websites couldn't be accessed, note this limitation and provide analysis based on available data.
Respond in structured markdown format.`
}

// CompetitorSite is one site prepared for the comparative prompt. An
// inaccessible site keeps its URL in the prompt so the model can note
// the limitation.
type CompetitorSite struct {
	URL        string
	Title      string
	Text       string
	Accessible bool
}

const maxCompetitorChars = 2000

func competitorContent(site CompetitorSite) string {
	if !site.Accessible {
		return "Content not accessible"
	}
	return clip(site.Text, maxCompetitorChars)
}

// BuildCompetitorPrompt assembles the comparative prompt for the main
// site and its competitors, in the given competitor order.
func BuildCompetitorPrompt(main CompetitorSite, competitors []CompetitorSite) analysis.Prompt {
	var b strings.Builder
	fmt.Fprintf(&b, `Main Company Website:
Title: %s
URL: %s
Accessible: %t
Content: %s

Competitor Websites:
`,
		main.Title,
		main.URL,
		main.Accessible,
		competitorContent(main),
	)
	for _, comp := range competitors {
		fmt.Fprintf(&b, "\nCompetitor: %s (%s)\nAccessible: %t\nContent: %s\n",
			comp.Title,
			comp.URL,
			comp.Accessible,
			competitorContent(comp),
		)
	}
	return analysis.Prompt{System: competitorsSystemPrompt(), User: b.String()}
}

// BuildPrompt assembles the module-specific prompt for a fetched page.
func BuildPrompt(module analysis.Module, page analysis.PageContent, params analysis.ModuleParams) (analysis.Prompt, error) {
	params = withDefaults(params, page)
	switch module {
	case analysis.ModuleSEO:
		return analysis.Prompt{System: seoSystemPrompt(), User: seoUserPrompt(page)}, nil
	case analysis.ModuleAudit:
		return analysis.Prompt{System: auditSystemPrompt(), User: auditUserPrompt(page)}, nil
	case analysis.ModuleContent:
		return analysis.Prompt{
			System: contentSystemPrompt(params.ContentType),
			User:   contentUserPrompt(page, params.ContentType),
		}, nil
	case analysis.ModuleSocial:
		return analysis.Prompt{
			System: socialSystemPrompt(params.Platforms),
			User:   socialUserPrompt(page, params.Platforms),
		}, nil
	case analysis.ModuleEmail:
		return analysis.Prompt{
			System: emailSystemPrompt(params.CampaignType),
			User:   emailUserPrompt(page, params.CampaignType),
		}, nil
	case analysis.ModuleContact:
		return analysis.Prompt{
			System:       contactSystemPrompt(),
			User:         contactUserPrompt(page),
			JSONResponse: true,
		}, nil
	case analysis.ModuleBrochure:
		return analysis.Prompt{
			System: brochureSystemPrompt(params.Humorous),
			User:   brochureUserPrompt(page, params.CompanyName),
		}, nil
	default:
		return analysis.Prompt{}, fmt.Errorf("%w: %q", analysis.ErrUnknownModule, module)
	}
}

func withDefaults(params analysis.ModuleParams, page analysis.PageContent) analysis.ModuleParams {
	if params.ContentType == "" {
		params.ContentType = "blog"
	}
	if len(params.Platforms) == 0 {
		params.Platforms = []string{"LinkedIn", "Twitter", "Instagram"}
	}
	if params.CampaignType == "" {
		params.CampaignType = "welcome_series"
	}
	if params.CompanyName == "" {
		params.CompanyName = CompanyFromDomain(page.Domain)
	}
	return params
}

// CompanyFromDomain derives a display name from a hostname
// ("www.acme-corp.io" becomes "Acme-corp").
func CompanyFromDomain(domain string) string {
	name := strings.TrimPrefix(strings.ToLower(domain), "www.")
	if i := strings.IndexByte(name, '.'); i > 0 {
		name = name[:i]
	}
	if name == "" {
		return "Company"
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

func seoUserPrompt(page analysis.PageContent) string {
	return fmt.Sprintf(`Analyze this website for SEO:
URL: %s
Title: %s
Meta Description: %s
Keywords: %s
Content Length: %d characters
Number of Images: %d
Number of Links: %d

Page Content:
%s`,
		page.URL,
		page.Title,
		page.MetaDescription,
		page.Keywords,
		len(page.Text),
		len(page.Images),
		len(page.Links),
		clip(page.Text, maxContextChars),
	)
}

func auditUserPrompt(page analysis.PageContent) string {
	internal, external := splitLinks(page)
	return fmt.Sprintf(`Audit this website comprehensively:
URL: %s
Title: %s
Meta Description: %s
Content Length: %d characters
Number of Pages Linked: %d
External Links: %d

Content:
%s

Navigation/Links:
%s`,
		page.URL,
		page.Title,
		page.MetaDescription,
		len(page.Text),
		internal,
		external,
		clip(page.Text, maxAuditChars),
		linkTexts(page, 15),
	)
}

func contentUserPrompt(page analysis.PageContent, contentType string) string {
	return fmt.Sprintf(`Generate %s content ideas for this company:
Company: %s
URL: %s
Description: %s
Domain: %s

Available Business Context:
%s`,
		contentType,
		page.Title,
		page.URL,
		page.MetaDescription,
		page.Domain,
		businessContext(page, maxContextChars),
	)
}

func socialUserPrompt(page analysis.PageContent, platforms []string) string {
	return fmt.Sprintf(`Create social media strategy for:
Company: %s
URL: %s
Domain: %s
Business Description: %s

Target Platforms: %s

Available Business Context:
%s`,
		page.Title,
		page.URL,
		page.Domain,
		page.MetaDescription,
		strings.Join(platforms, ", "),
		businessContext(page, 2000),
	)
}

func emailUserPrompt(page analysis.PageContent, campaignType string) string {
	return fmt.Sprintf(`Create %s email campaign for:
Company: %s
URL: %s
Domain: %s
Business: %s

Available Company Information:
%s`,
		campaignType,
		page.Title,
		page.URL,
		page.Domain,
		page.MetaDescription,
		businessContext(page, 2000),
	)
}

func contactUserPrompt(page analysis.PageContent) string {
	links := make([]string, 0, maxLinksInPrompt)
	for i, l := range page.Links {
		if i >= maxLinksInPrompt {
			break
		}
		links = append(links, fmt.Sprintf("%s -> %s", l.Text, l.URL))
	}
	return fmt.Sprintf(`Extract contact information and lead magnets from:
URL: %s
Title: %s
Domain: %s
Content: %s

Links found:
%s`,
		page.URL,
		page.Title,
		page.Domain,
		businessContext(page, 2000),
		strings.Join(links, "\n"),
	)
}

func brochureUserPrompt(page analysis.PageContent, companyName string) string {
	return fmt.Sprintf(`Company: %s
URL: %s
Domain: %s
Title: %s
Content: %s`,
		companyName,
		page.URL,
		page.Domain,
		page.Title,
		businessContext(page, maxContextChars),
	)
}

// businessContext returns the page text, or a domain-inference hint
// when extraction produced too little to analyze.
func businessContext(page analysis.PageContent, limit int) string {
	if len(page.Text) == 0 {
		return fmt.Sprintf("Limited access to %s - please infer business type from the domain name", page.Domain)
	}
	return clip(page.Text, limit)
}

func clip(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}

func splitLinks(page analysis.PageContent) (internal, external int) {
	for _, l := range page.Links {
		if strings.Contains(l.URL, page.Domain) {
			internal++
		} else {
			external++
		}
	}
	return internal, external
}

func linkTexts(page analysis.PageContent, limit int) string {
	texts := make([]string, 0, limit)
	for i, l := range page.Links {
		if i >= limit {
			break
		}
		if l.Text != "" {
			texts = append(texts, l.Text)
		}
	}
	sort.Strings(texts)
	return strings.Join(texts, ", ")
}
