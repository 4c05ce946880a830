package engine

import (
	"strings"

	"github.com/snipara/rlm/models"
)

// FirstQueryTips renders the plan-filtered tool guide injected on the first
// query of a session. Tools are grouped by tier so the guide costs tokens
// once instead of on every call.
func FirstQueryTips(plan models.Plan) string {
	var b strings.Builder

	b.WriteString("## Snipara Tool Guide\n\n")
	b.WriteString("**Tiers:** 🟢 Primary | 🔵 Power User | 🟡 Team | ⚪ Utility | 🔴 Advanced\n\n")

	b.WriteString("**🟢 Primary Tools (Start Here):**\n")
	b.WriteString("- `rlm_context_query` - Full documentation query with token budgeting\n")
	b.WriteString("- `rlm_ask` - Quick, simple query (~2500 tokens)\n")
	b.WriteString("- `rlm_search` - Regex pattern search\n")
	b.WriteString("- `rlm_recall` - Retrieve saved memories\n\n")

	if plan.HasSemanticSearch() {
		b.WriteString("**🔵 Power User Tools (Pro+):**\n")
		b.WriteString("- `rlm_multi_query` - Batch multiple queries\n")
		b.WriteString("- `rlm_decompose` - Break complex queries into sub-queries\n")
		b.WriteString("- `rlm_remember` / `rlm_remember_bulk` - Store memories\n")
		b.WriteString("- `rlm_load_document` - Load raw document content\n\n")
	}

	if plan.HasTeamFeatures() {
		b.WriteString("**🟡 Team Tools (Team+):**\n")
		b.WriteString("- `rlm_multi_project_query` - Search across ALL projects\n")
		b.WriteString("- `rlm_plan` - Generate execution plan\n")
		b.WriteString("- `rlm_shared_context` - Team coding standards\n\n")
	}

	b.WriteString("**⚪ Utility Tools:**\n")
	b.WriteString("- `rlm_inject` / `rlm_context` / `rlm_clear_context` - Session context\n")
	b.WriteString("- `rlm_stats` / `rlm_sections` - Documentation structure\n\n")

	if plan.HasTeamFeatures() {
		b.WriteString("**🔴 Advanced Tools (Expert):**\n")
		b.WriteString("- `rlm_swarm_*` - Multi-agent coordination\n\n")
	}

	b.WriteString("**Tip:** Start with `rlm_ask` for quick answers, `rlm_context_query` for control.\n\n")
	b.WriteString("---")

	return b.String()
}
