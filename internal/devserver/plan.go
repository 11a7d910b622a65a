package devserver

import (
	"fmt"
	"strings"

	"github.com/tw1nflame/chat-langchain/internal"
)

// PlanPrefix turns a message into a multi-step plan that waits for confirmation
const PlanPrefix = "/plan "

// CancelledResult is the text a cancelled plan is replaced with
const CancelledResult = "Plan cancelled by user."

// parsePlanRequest returns the plan request when content asks for one
func parsePlanRequest(content string) (string, bool) {
	request, ok := strings.CutPrefix(content, PlanPrefix)
	if !ok {
		return "", false
	}
	request = strings.TrimSpace(request)
	return request, request != ""
}

// planSteps splits a request on semicolons and newlines
func planSteps(request string) []string {
	fields := strings.FieldsFunc(request, func(r rune) bool { return r == ';' || r == '\n' })
	steps := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			steps = append(steps, f)
		}
	}
	if len(steps) == 0 {
		steps = append(steps, strings.TrimSpace(request))
	}
	return steps
}

func planProposal(request string) string {
	var b strings.Builder
	b.WriteString("I will run the following plan:\n\n")
	for i, step := range planSteps(request) {
		fmt.Fprintf(&b, "%d. %s\n", i+1, step)
	}
	b.WriteString("\nApprove to continue or cancel to stop.")
	return b.String()
}

func planTable(p Plan) internal.Table {
	steps := planSteps(p.Request)
	rows := make([][]interface{}, 0, len(steps))
	for i, step := range steps {
		rows = append(rows, []interface{}{i + 1, step, PlanDone})
	}
	return internal.Table{
		Title:       "Plan steps",
		Headers:     []string{"#", "step", "status"},
		Rows:        rows,
		DownloadURL: planTableURL(p.ID),
	}
}

func fileURL(id string) string {
	return APIPrefix + "/files/" + id
}

func planTableURL(id string) string {
	return APIPrefix + "/plans/" + id + "/table.csv"
}
