package runner

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/siteintel/analyzer/internal/analysis"
)

func TestBuildPromptIsDeterministic(t *testing.T) {
	t.Parallel()

	page := testPage()
	params := analysis.ModuleParams{ContentType: "video"}
	for _, module := range analysis.AllModules() {
		first, err := BuildPrompt(module, page, params)
		require.NoError(t, err)
		second, err := BuildPrompt(module, page, params)
		require.NoError(t, err)
		require.Equal(t, first, second, "module %s", module)
	}
}

func TestBuildPromptContactRequestsJSON(t *testing.T) {
	t.Parallel()

	p, err := BuildPrompt(analysis.ModuleContact, testPage(), analysis.ModuleParams{})
	require.NoError(t, err)
	require.True(t, p.JSONResponse)

	p, err = BuildPrompt(analysis.ModuleSEO, testPage(), analysis.ModuleParams{})
	require.NoError(t, err)
	require.False(t, p.JSONResponse)
}

func TestBuildPromptAppliesParamDefaults(t *testing.T) {
	t.Parallel()

	p, err := BuildPrompt(analysis.ModuleSocial, testPage(), analysis.ModuleParams{})
	require.NoError(t, err)
	require.Contains(t, p.System, "LinkedIn, Twitter, Instagram")

	p, err = BuildPrompt(analysis.ModuleSocial, testPage(), analysis.ModuleParams{Platforms: []string{"TikTok"}})
	require.NoError(t, err)
	require.Contains(t, p.System, "TikTok")
	require.NotContains(t, p.System, "LinkedIn")

	p, err = BuildPrompt(analysis.ModuleEmail, testPage(), analysis.ModuleParams{})
	require.NoError(t, err)
	require.Contains(t, p.System, "welcome_series")
}

func TestBuildPromptBrochureTone(t *testing.T) {
	t.Parallel()

	p, err := BuildPrompt(analysis.ModuleBrochure, testPage(), analysis.ModuleParams{})
	require.NoError(t, err)
	require.NotContains(t, p.System, "humorous")
	require.Contains(t, p.User, "Example")

	p, err = BuildPrompt(analysis.ModuleBrochure, testPage(), analysis.ModuleParams{Humorous: true})
	require.NoError(t, err)
	require.Contains(t, p.System, "humorous")
}

func TestBuildPromptThinPageFallsBackToDomainInference(t *testing.T) {
	t.Parallel()

	page := testPage()
	page.Text = ""
	p, err := BuildPrompt(analysis.ModuleContent, page, analysis.ModuleParams{})
	require.NoError(t, err)
	require.Contains(t, p.User, "infer business type from the domain name")
}

func TestBuildCompetitorPrompt(t *testing.T) {
	t.Parallel()

	main := CompetitorSite{
		URL:        "https://example.com",
		Title:      "Example Site",
		Text:       "Handmade widgets sold online.",
		Accessible: true,
	}
	competitors := []CompetitorSite{
		{URL: "https://rival-one.com", Title: "Rival One", Text: "Mass-produced widgets.", Accessible: true},
		{URL: "https://rival-two.com", Accessible: false},
	}

	first := BuildCompetitorPrompt(main, competitors)
	second := BuildCompetitorPrompt(main, competitors)
	require.Equal(t, first, second)

	require.Contains(t, first.System, "competitive analysis")
	require.Contains(t, first.User, "Main Company Website:")
	require.Contains(t, first.User, "Title: Example Site")
	require.Contains(t, first.User, "Handmade widgets sold online.")
	require.Contains(t, first.User, "Competitor: Rival One (https://rival-one.com)")
	require.Contains(t, first.User, "Competitor:  (https://rival-two.com)")
	require.Contains(t, first.User, "Content: Content not accessible")
	require.False(t, first.JSONResponse)
}

func TestBuildCompetitorPromptClipsLongContent(t *testing.T) {
	t.Parallel()

	site := CompetitorSite{
		URL:        "https://example.com",
		Title:      "Example",
		Text:       strings.Repeat("w", maxCompetitorChars+500),
		Accessible: true,
	}
	p := BuildCompetitorPrompt(site, nil)
	require.NotContains(t, p.User, strings.Repeat("w", maxCompetitorChars+1))
	require.Contains(t, p.User, strings.Repeat("w", maxCompetitorChars))
}

func TestCompanyFromDomain(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Acme-corp", CompanyFromDomain("www.acme-corp.io"))
	require.Equal(t, "Example", CompanyFromDomain("example.com"))
	require.Equal(t, "Company", CompanyFromDomain(""))
}

func TestBuildPromptRejectsUnknownModule(t *testing.T) {
	t.Parallel()

	_, err := BuildPrompt(analysis.Module("nope"), testPage(), analysis.ModuleParams{})
	require.ErrorIs(t, err, analysis.ErrUnknownModule)
}
