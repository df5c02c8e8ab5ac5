package arena

import (
	"fmt"
	"sort"

	"arena-api/pkg/account"
	"arena-api/pkg/llm"
)

// PersonaInputs is the data available to an agent's personality template.
type PersonaInputs struct {
	ID           string
	Name         string
	Model        string
	Symbols      []string
	MaxLeverage  int
	MinTradeSize float64
	MaxTradeSize float64
}

// Agent pairs one model configuration with its simulated account. The
// personality template renders once at construction; the result becomes the
// system prompt for every decision this agent makes.
type Agent struct {
	cfg          AgentConfig
	account      *account.Account
	systemPrompt string
	promptDigest string
}

func newAgent(cfg AgentConfig, acct *account.Account, inputs PersonaInputs) (*Agent, error) {
	tpl, err := llm.NewPromptTemplate(cfg.PromptFile, nil)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", cfg.ID, err)
	}
	system, err := tpl.Render(inputs)
	if err != nil {
		return nil, fmt.Errorf("agent %s: render persona: %w", cfg.ID, err)
	}
	return &Agent{
		cfg:          cfg,
		account:      acct,
		systemPrompt: system,
		promptDigest: tpl.Digest(),
	}, nil
}

func (a *Agent) ID() string                { return a.cfg.ID }
func (a *Agent) Name() string              { return a.cfg.Name }
func (a *Agent) Model() string             { return a.cfg.Model }
func (a *Agent) Temperature() *float64     { return a.cfg.Temperature }
func (a *Agent) MaxTokens() *int           { return a.cfg.MaxTokens }
func (a *Agent) Account() *account.Account { return a.account }
func (a *Agent) SystemPrompt() string      { return a.systemPrompt }
func (a *Agent) PromptDigest() string      { return a.promptDigest }

// Registry holds the competing agents keyed by id. Iteration order is the
// sorted id order so cycles and reports are reproducible.
type Registry struct {
	agents map[string]*Agent
	order  []string
}

// NewRegistry builds one agent per enabled roster entry, each with a fresh
// account funded from the arena block.
func NewRegistry(cfg *Config) (*Registry, error) {
	if cfg == nil {
		return nil, fmt.Errorf("arena registry requires config")
	}
	reg := &Registry{agents: make(map[string]*Agent)}
	for _, ac := range cfg.EnabledAgents() {
		acct, err := account.New(ac.ID, cfg.AccountConfig())
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", ac.ID, err)
		}
		inputs := PersonaInputs{
			ID:           ac.ID,
			Name:         ac.Name,
			Model:        ac.Model,
			Symbols:      cfg.Arena.Symbols,
			MaxLeverage:  cfg.Arena.MaxLeverage,
			MinTradeSize: cfg.Arena.MinTradeSize,
			MaxTradeSize: cfg.Arena.MaxTradeSize,
		}
		agent, err := newAgent(ac, acct, inputs)
		if err != nil {
			return nil, err
		}
		reg.agents[ac.ID] = agent
		reg.order = append(reg.order, ac.ID)
	}
	if len(reg.agents) == 0 {
		return nil, fmt.Errorf("arena registry: no enabled agents")
	}
	sort.Strings(reg.order)
	return reg, nil
}

// Get looks up an agent by id.
func (r *Registry) Get(id string) (*Agent, bool) {
	a, ok := r.agents[id]
	return a, ok
}

// Agents returns all agents in sorted id order.
func (r *Registry) Agents() []*Agent {
	out := make([]*Agent, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.agents[id])
	}
	return out
}

// IDs returns the sorted agent ids.
func (r *Registry) IDs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len reports how many agents compete.
func (r *Registry) Len() int { return len(r.order) }
