package handlers

import (
	"github.com/snipara/rlm/models"
)

// toolSpec is one catalog entry advertised over tools/list.
type toolSpec struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func schema(props map[string]interface{}, required ...string) map[string]interface{} {
	s := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func str(desc string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": desc}
}

func integer(desc string) map[string]interface{} {
	return map[string]interface{}{"type": "integer", "description": desc}
}

func number(desc string) map[string]interface{} {
	return map[string]interface{}{"type": "number", "description": desc}
}

func boolean(desc string) map[string]interface{} {
	return map[string]interface{}{"type": "boolean", "description": desc}
}

func strArray(desc string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "array",
		"items":       map[string]interface{}{"type": "string"},
		"description": desc,
	}
}

func enum(desc string, values ...string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "enum": values, "description": desc}
}

var documentSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"path":    str("Document path, must end in .md, .txt or .mdx"),
		"content": str("Full document content"),
	},
	"required": []string{"path", "content"},
}

var taskSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"title":       str("Task title"),
		"description": str("Task description"),
		"priority":    integer("0-100, higher first"),
		"depends_on":  strArray("Task ids that must complete first"),
	},
	"required": []string{"title"},
}

// toolCatalog lists every tool in advertisement order with its input schema.
// The order follows models.AllTools.
var toolCatalog = map[models.ToolName]toolSpec{
	models.ToolAsk: {
		Description: "Quick documentation question with a fixed ~2500 token budget",
		InputSchema: schema(map[string]interface{}{
			"question":   str("The question to answer from the docs"),
			"session_id": str("Session id for context continuity"),
		}, "question"),
	},
	models.ToolContextQuery: {
		Description: "Query documentation with token budgeting, ranking and optional references",
		InputSchema: schema(map[string]interface{}{
			"query":             str("Natural-language query"),
			"max_tokens":        integer("Token budget, 100-100000, default 4000"),
			"search_mode":       enum("Ranking strategy", "keyword", "semantic", "hybrid"),
			"prefer_summaries":  boolean("Substitute stored summaries where shorter"),
			"return_references": boolean("Return chunk references instead of full content"),
			"include_shared":    boolean("Include team shared context"),
			"session_id":        str("Session id for injected context and tips"),
		}, "query"),
	},
	models.ToolSearch: {
		Description: "Regex pattern search across the indexed corpus",
		InputSchema: schema(map[string]interface{}{
			"pattern":        str("Regular expression"),
			"max_results":    integer("Cap on returned matches, default 50"),
			"case_sensitive": boolean("Match case-sensitively"),
		}, "pattern"),
	},
	models.ToolMultiQuery: {
		Description: "Batch up to 10 context queries sharing one token budget",
		InputSchema: schema(map[string]interface{}{
			"queries":    strArray("Queries to run"),
			"max_tokens": integer("Shared token budget"),
			"session_id": str("Session id"),
		}, "queries"),
	},
	models.ToolDecompose: {
		Description: "Break a complex query into focused sub-queries",
		InputSchema: schema(map[string]interface{}{
			"query": str("The complex query"),
		}, "query"),
	},
	models.ToolPlan: {
		Description: "Generate an ordered execution plan for a task",
		InputSchema: schema(map[string]interface{}{
			"query": str("The task to plan"),
		}, "query"),
	},
	models.ToolMultiProjectQuery: {
		Description: "Fan a query across every project the team can access",
		InputSchema: schema(map[string]interface{}{
			"query":             str("Natural-language query"),
			"max_tokens":        integer("Total token budget"),
			"per_project_limit": integer("Sections per project, default 3"),
		}, "query"),
	},
	models.ToolGetChunk: {
		Description: "Resolve a reference-mode chunk id to full content",
		InputSchema: schema(map[string]interface{}{
			"chunk_id": str("Chunk id from a section_refs entry"),
		}, "chunk_id"),
	},
	models.ToolSections: {
		Description: "List the section structure of the indexed corpus",
		InputSchema: schema(map[string]interface{}{}),
	},
	models.ToolStats: {
		Description: "Corpus statistics: documents, sections, tokens, memories",
		InputSchema: schema(map[string]interface{}{}),
	},
	models.ToolInject: {
		Description: "Inject content into the session context",
		InputSchema: schema(map[string]interface{}{
			"content":    str("Context to inject"),
			"session_id": str("Session id"),
			"append":     boolean("Append instead of replace"),
		}, "content"),
	},
	models.ToolContext: {
		Description: "Read the current session context",
		InputSchema: schema(map[string]interface{}{
			"session_id": str("Session id"),
		}),
	},
	models.ToolClearContext: {
		Description: "Clear the session context",
		InputSchema: schema(map[string]interface{}{
			"session_id": str("Session id"),
		}),
	},
	models.ToolRemember: {
		Description: "Store one agent memory",
		InputSchema: schema(map[string]interface{}{
			"content":  str("Memory content"),
			"type":     enum("Memory type", "FACT", "DECISION", "LEARNING", "PREFERENCE", "TODO", "CONTEXT"),
			"scope":    enum("Recall scope", "AGENT", "PROJECT", "TEAM", "USER"),
			"category": str("Free-form category label"),
			"tags":     strArray("Tags"),
			"ttl_days": integer("Days until expiry, 0 = never"),
		}, "content"),
	},
	models.ToolRememberBulk: {
		Description: "Store up to 50 memories in one call",
		InputSchema: schema(map[string]interface{}{
			"items": map[string]interface{}{
				"type":        "array",
				"items":       map[string]interface{}{"type": "object"},
				"description": "Memories, each shaped like rlm_remember params",
			},
		}, "items"),
	},
	models.ToolRecall: {
		Description: "Retrieve memories ranked by relevance to a query",
		InputSchema: schema(map[string]interface{}{
			"query":           str("What to recall"),
			"limit":           integer("Max results, default 5"),
			"min_relevance":   number("Relevance floor, default 0.5"),
			"type":            str("Filter by memory type"),
			"scope":           str("Filter by scope"),
			"include_expired": boolean("Include expired memories"),
		}, "query"),
	},
	models.ToolMemories: {
		Description: "List stored memories with filters",
		InputSchema: schema(map[string]interface{}{
			"type":            str("Filter by memory type"),
			"scope":           str("Filter by scope"),
			"category":        str("Filter by category"),
			"limit":           integer("Max results, default 20"),
			"include_expired": boolean("Include expired memories"),
		}),
	},
	models.ToolForget: {
		Description: "Delete memories by id, type, category or age",
		InputSchema: schema(map[string]interface{}{
			"memory_id":       str("Specific memory id"),
			"type":            str("Delete all of a type"),
			"category":        str("Delete all in a category"),
			"older_than_days": integer("Delete memories older than this"),
		}),
	},
	models.ToolUploadDocument: {
		Description: "Upload or update one document in the corpus",
		InputSchema: schema(map[string]interface{}{
			"path":    str("Document path, must end in .md, .txt or .mdx"),
			"content": str("Full document content"),
		}, "path", "content"),
	},
	models.ToolSyncDocuments: {
		Description: "Bulk upload documents, optionally deleting absent paths",
		InputSchema: schema(map[string]interface{}{
			"documents": map[string]interface{}{
				"type":        "array",
				"items":       documentSchema,
				"description": "Documents to sync",
			},
			"delete_absent": boolean("Delete documents not in this batch"),
		}, "documents"),
	},
	models.ToolRequestAccess: {
		Description: "Request an access level on this project for your team",
		InputSchema: schema(map[string]interface{}{
			"level":   enum("Requested level", "VIEWER", "EDITOR", "ADMIN"),
			"message": str("Why access is needed"),
		}),
	},
	models.ToolSettings: {
		Description: "Read or update per-project query settings",
		InputSchema: schema(map[string]interface{}{
			"updates": map[string]interface{}{
				"type":        "object",
				"description": "Settings keys to change; omit to read",
			},
		}),
	},
	models.ToolStoreSummary: {
		Description: "Store a summary for a document or section",
		InputSchema: schema(map[string]interface{}{
			"document_path": str("Path of the summarized document"),
			"content":       str("Summary text"),
			"summary_type":  enum("Granularity", "SHORT", "MEDIUM", "DETAILED", "KEYWORDS"),
			"section_id":    str("Section id for section-level summaries"),
		}, "document_path", "content"),
	},
	models.ToolGetSummaries: {
		Description: "List stored summaries for a document",
		InputSchema: schema(map[string]interface{}{
			"document_path": str("Document path"),
			"summary_type":  str("Filter by type"),
		}),
	},
	models.ToolDeleteSummary: {
		Description: "Delete a stored summary",
		InputSchema: schema(map[string]interface{}{
			"document_path": str("Document path"),
			"summary_type":  str("Summary type"),
			"section_id":    str("Section id"),
		}, "document_path", "summary_type"),
	},
	models.ToolSwarmCreate: {
		Description: "Create a named agent swarm for this project",
		InputSchema: schema(map[string]interface{}{
			"name":          str("Swarm name, unique per project"),
			"max_agents":    integer("2-50, default 10"),
			"task_timeout":  integer("Seconds before an in-progress task is reaped"),
			"claim_timeout": integer("Default claim TTL in seconds"),
		}, "name"),
	},
	models.ToolSwarmJoin: {
		Description: "Join a swarm as an agent",
		InputSchema: schema(map[string]interface{}{
			"swarm_name": str("Swarm to join"),
			"agent_id":   str("Caller's agent id"),
			"role":       str("Declared role"),
		}, "swarm_name", "agent_id"),
	},
	models.ToolSwarmLeave: {
		Description: "Leave a swarm, releasing all held claims",
		InputSchema: schema(map[string]interface{}{
			"swarm_name": str("Swarm to leave"),
			"agent_id":   str("Caller's agent id"),
		}, "swarm_name", "agent_id"),
	},
	models.ToolSwarmStatus: {
		Description: "Swarm membership, claims and task counts",
		InputSchema: schema(map[string]interface{}{
			"swarm_name": str("Swarm name"),
		}, "swarm_name"),
	},
	models.ToolClaimResource: {
		Description: "Acquire an exclusive claim on a resource",
		InputSchema: schema(map[string]interface{}{
			"swarm_name":    str("Swarm name"),
			"agent_id":      str("Claiming agent"),
			"resource_type": str("Resource type, e.g. file"),
			"resource_id":   str("Resource identifier"),
			"ttl_seconds":   integer("Claim TTL, default 300"),
		}, "swarm_name", "agent_id", "resource_type", "resource_id"),
	},
	models.ToolReleaseResource: {
		Description: "Release a claim by id or by resource",
		InputSchema: schema(map[string]interface{}{
			"swarm_name":    str("Swarm name"),
			"agent_id":      str("Holding agent"),
			"claim_id":      str("Claim id"),
			"resource_type": str("Resource type"),
			"resource_id":   str("Resource identifier"),
		}, "swarm_name", "agent_id"),
	},
	models.ToolCheckClaim: {
		Description: "Check whether a resource is currently claimed",
		InputSchema: schema(map[string]interface{}{
			"swarm_name":    str("Swarm name"),
			"resource_type": str("Resource type"),
			"resource_id":   str("Resource identifier"),
		}, "swarm_name", "resource_type", "resource_id"),
	},
	models.ToolStateGet: {
		Description: "Read a shared state key with its version",
		InputSchema: schema(map[string]interface{}{
			"swarm_name": str("Swarm name"),
			"key":        str("State key"),
		}, "swarm_name", "key"),
	},
	models.ToolStateSet: {
		Description: "Write a shared state key, optionally compare-and-swap on version",
		InputSchema: schema(map[string]interface{}{
			"swarm_name":       str("Swarm name"),
			"agent_id":         str("Writing agent"),
			"key":              str("State key"),
			"value":            map[string]interface{}{"description": "Any JSON value"},
			"expected_version": integer("Version the write must replace"),
			"ttl_seconds":      integer("Key TTL"),
		}, "swarm_name", "agent_id", "key"),
	},
	models.ToolStatePoll: {
		Description: "Poll shared state keys for changes since known versions",
		InputSchema: schema(map[string]interface{}{
			"swarm_name":    str("Swarm name"),
			"keys":          strArray("Keys to poll"),
			"last_versions": map[string]interface{}{"type": "object", "description": "key -> last seen version"},
		}, "swarm_name", "keys"),
	},
	models.ToolTaskCreate: {
		Description: "Create a task in the swarm queue",
		InputSchema: schema(map[string]interface{}{
			"swarm_name":  str("Swarm name"),
			"title":       str("Task title"),
			"description": str("Task description"),
			"priority":    integer("0-100, higher first"),
			"depends_on":  strArray("Task ids that must complete first"),
			"deadline":    str("RFC3339 deadline"),
		}, "swarm_name", "title"),
	},
	models.ToolTaskCreateBulk: {
		Description: "Create several tasks in one call",
		InputSchema: schema(map[string]interface{}{
			"swarm_name": str("Swarm name"),
			"tasks": map[string]interface{}{
				"type":        "array",
				"items":       taskSchema,
				"description": "Tasks to create",
			},
		}, "swarm_name", "tasks"),
	},
	models.ToolTaskClaim: {
		Description: "Claim the next ready task, or a specific one",
		InputSchema: schema(map[string]interface{}{
			"swarm_name": str("Swarm name"),
			"agent_id":   str("Claiming agent"),
			"task_id":    str("Specific task id"),
		}, "swarm_name", "agent_id"),
	},
	models.ToolTaskComplete: {
		Description: "Mark a claimed task completed or failed",
		InputSchema: schema(map[string]interface{}{
			"swarm_name": str("Swarm name"),
			"agent_id":   str("Assignee agent"),
			"task_id":    str("Task id"),
			"success":    boolean("false marks the task FAILED"),
			"result":     str("Result note"),
		}, "swarm_name", "agent_id", "task_id"),
	},
	models.ToolTaskList: {
		Description: "List swarm tasks, optionally by status",
		InputSchema: schema(map[string]interface{}{
			"swarm_name": str("Swarm name"),
			"status":     enum("Filter", "PENDING", "IN_PROGRESS", "COMPLETED", "FAILED"),
			"limit":      integer("Max results, default 50"),
		}, "swarm_name"),
	},
}

// catalog renders the advertised tool list, restricted to the given names.
func catalog(tools []models.ToolName) []toolSpec {
	out := make([]toolSpec, 0, len(tools))
	for _, name := range tools {
		spec, ok := toolCatalog[name]
		if !ok {
			continue
		}
		spec.Name = string(name)
		out = append(out, spec)
	}
	return out
}
