package tool

// Tool is a user-facing entry in the catalog. AgentID selects the agent
// implementation serving it; unknown ids fall back to the default agent.
type Tool struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description"`
	AgentID     string `json:"agentId" yaml:"agent_id"`
	Enabled     bool   `json:"enabled" yaml:"enabled"`
}

// Seed provides the default catalog used when no tools file is configured.
func Seed() []Tool {
	return []Tool{
		{
			ID:          "scene-3d",
			Name:        "校园场景 3D 底图",
			Description: "将实拍校园照片转化为写实 3D 渲染底图",
			AgentID:     "scene-3d-generator",
			Enabled:     true,
		},
		{
			ID:          "history-museum",
			Name:        "校史馆空间设计",
			Description: "把空间底图改造成校史馆展陈效果图",
			AgentID:     "school-history-museum-generator",
			Enabled:     true,
		},
		{
			ID:          "research",
			Name:        "校情调研助手",
			Description: "整理学校与校领导公开信息，预判校庆项目",
			AgentID:     "school-research-assistant",
			Enabled:     true,
		},
	}
}
