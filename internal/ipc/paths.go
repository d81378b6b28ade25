// Package ipc implements the file-backed IPC fabric between the host and a
// workspace's sandboxed worker process: the per-workspace directory layout,
// atomic writers and watchers for each channel, and request/response
// correlation for privileged-action tasks.
package ipc

import "path/filepath"

// Paths resolves every file and directory the fabric uses for one
// workspace, rooted at a host-owned data directory.
type Paths struct {
	root string
}

// NewPaths returns a Paths rooted at dataRoot/ipc/<workspaceFolder>.
func NewPaths(dataRoot, workspaceFolder string) Paths {
	return Paths{root: filepath.Join(dataRoot, "ipc", workspaceFolder)}
}

func (p Paths) Root() string               { return p.root }
func (p Paths) Input() string               { return filepath.Join(p.root, "input") }
func (p Paths) Output() string              { return filepath.Join(p.root, "output") }
func (p Paths) Tasks() string               { return filepath.Join(p.root, "tasks") }
func (p Paths) Responses() string           { return filepath.Join(p.root, "responses") }
func (p Paths) PendingApprovals() string    { return filepath.Join(p.root, "pending_approvals") }
func (p Paths) PendingQuestions() string    { return filepath.Join(p.root, "pending_questions") }
func (p Paths) ApprovalDecisions() string   { return filepath.Join(p.root, "approval_decisions") }
func (p Paths) MergeResults() string        { return filepath.Join(p.root, "merge_results") }
func (p Paths) CurrentTasksFile() string    { return filepath.Join(p.root, "current_tasks.json") }
func (p Paths) AvailableWorkspacesFile() string {
	return filepath.Join(p.root, "available_workspaces.json")
}

func (p Paths) CloseSentinel() string { return filepath.Join(p.Input(), "_close") }

func (p Paths) ResponseFile(requestID string) string {
	return filepath.Join(p.Responses(), requestID+".json")
}

func (p Paths) PendingApprovalFile(requestID string) string {
	return filepath.Join(p.PendingApprovals(), requestID+".json")
}

func (p Paths) ApprovalDecisionFile(requestID string) string {
	return filepath.Join(p.ApprovalDecisions(), requestID+".json")
}

// Dirs returns every directory that must exist before the worker starts.
func (p Paths) Dirs() []string {
	return []string{
		p.Input(), p.Output(), p.Tasks(), p.Responses(),
		p.PendingApprovals(), p.PendingQuestions(), p.ApprovalDecisions(), p.MergeResults(),
	}
}
