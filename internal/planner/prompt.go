package planner

// systemPrompt frames plan generation.
const systemPrompt = `You turn a request into an executable multi-action plan.
Respond with a single JSON object and nothing else.`

// planPrompt is formatted with the available tools, the executor capabilities
// and the user request.
const planPrompt = `Break the request below into a plan of actions.

JSON schema:
{
  "name": "short plan name",
  "description": "one sentence",
  "actions": [
    {
      "id": "a1",
      "name": "imperative title",
      "description": "what this action must produce",
      "target": {"kind": "tool-call", "executor_ref": "<tool name>"} or {"kind": "delegated"},
      "parameters": {"capabilities": ["code"]},
      "order": 0,
      "depends_on": []
    }
  ]
}

Rules:
- Actions with the same "order" run concurrently; lower orders run first.
- Use "tool-call" only with one of these tools: %s
- Delegated actions are routed by capability. Known capabilities: %s
- List an action in "depends_on" only if it has a lower "order".

REQUEST:
%s`
