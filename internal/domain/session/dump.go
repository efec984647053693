package session

import (
	"sort"

	"github.com/GriffinCanCode/imf/internal/domain/client"
	"github.com/GriffinCanCode/imf/internal/domain/ime"
	"github.com/GriffinCanCode/imf/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/imf/internal/protocol"
)

// Dump is a read-only snapshot of a session
type Dump struct {
	UserID        int32                  `json:"user_id"`
	SceneBoard    bool                   `json:"scene_board"`
	LastSessionID uint32                 `json:"last_session_id"`
	InputType     protocol.InputType     `json:"input_type"`
	InputTypeIme  string                 `json:"input_type_ime,omitempty"`
	Groups        []client.GroupSummary  `json:"groups"`
	Imes          []ime.Info             `json:"imes"`
	RestartBudget resilience.BudgetStats `json:"restart_budget"`
}

// Dump snapshots the session
func (s *Session) Dump() Dump {
	d := Dump{
		UserID:        s.userID,
		SceneBoard:    s.policy.SceneBoard,
		RestartBudget: s.budget.Stats(),
	}

	s.stateMu.Lock()
	d.LastSessionID = s.nextSessionID
	d.InputType = s.inputType
	if !s.inputTypeIme.IsZero() {
		d.InputTypeIme = s.inputTypeIme.String()
	}
	s.stateMu.Unlock()

	groups := s.allGroups()
	sort.Slice(groups, func(i, j int) bool { return groups[i].DisplayGroupID() < groups[j].DisplayGroupID() })
	d.Groups = make([]client.GroupSummary, 0, len(groups))
	for _, g := range groups {
		d.Groups = append(d.Groups, g.Summary())
	}

	s.imeMu.Lock()
	datas := make([]*ime.Data, 0, len(s.imeData))
	for _, data := range s.imeData {
		datas = append(datas, data)
	}
	s.imeMu.Unlock()
	sort.Slice(datas, func(i, j int) bool { return datas[i].Type < datas[j].Type })
	d.Imes = make([]ime.Info, 0, len(datas))
	for _, data := range datas {
		d.Imes = append(d.Imes, data.Info())
	}
	return d
}

// CurrentIme returns the running primary IME, if any
func (s *Session) CurrentIme() (ime.Target, bool) {
	data := s.getImeData(ime.TypeIme)
	if data == nil {
		return ime.Target{}, false
	}
	return s.targetOf(data), true
}

// ClientCount returns the number of registered clients over all groups
func (s *Session) ClientCount() int {
	n := 0
	for _, g := range s.allGroups() {
		n += g.Len()
	}
	return n
}

// RoleOfPid returns the IME role the process pid is registered in
func (s *Session) RoleOfPid(pid int32) (ime.Type, bool) {
	s.imeMu.Lock()
	defer s.imeMu.Unlock()
	for t, data := range s.imeData {
		if data.Connection().Pid == pid && !data.Connection().CoreHandle.IsZero() {
			return t, true
		}
	}
	return ime.TypeNone, false
}
