package agent

import (
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// SkillMeta is the YAML frontmatter of a SKILL.md file.
type SkillMeta struct {
	Description string `yaml:"description"`
	Always      bool   `yaml:"always"`
	Requires    struct {
		Bins []string `yaml:"bins"`
		Env  []string `yaml:"env"`
	} `yaml:"requires"`
}

// SkillInfo describes a discovered skill and its availability on this host.
type SkillInfo struct {
	Name        string
	Path        string
	Source      string // "workspace" or "builtin"
	Description string
	Always      bool
	Available   bool
	Missing     []string // unmet requirements, e.g. "bin:ffmpeg", "env:GITHUB_TOKEN"
}

// SkillsLoader discovers and loads skills from workspace and builtin dirs.
// Workspace skills shadow builtins with the same name.
type SkillsLoader struct {
	WorkspaceSkills string
	BuiltinSkills   string
}

// NewSkillsLoader creates a SkillsLoader.
func NewSkillsLoader(workspace, builtinSkillsDir string) *SkillsLoader {
	return &SkillsLoader{
		WorkspaceSkills: filepath.Join(workspace, "skills"),
		BuiltinSkills:   builtinSkillsDir,
	}
}

// ListSkills returns all discovered skills with metadata and availability
// resolved. Unavailable skills are listed, never hidden.
func (s *SkillsLoader) ListSkills() []SkillInfo {
	var skills []SkillInfo
	seen := map[string]bool{}

	collect := func(dir, source string) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return
		}
		for _, e := range entries {
			if !e.IsDir() || seen[e.Name()] {
				continue
			}
			skillFile := filepath.Join(dir, e.Name(), "SKILL.md")
			if _, err := os.Stat(skillFile); err != nil {
				continue
			}
			seen[e.Name()] = true

			info := SkillInfo{Name: e.Name(), Path: skillFile, Source: source, Available: true}
			if meta := s.GetSkillMetadata(e.Name()); meta != nil {
				info.Description = meta.Description
				info.Always = meta.Always
				info.Available, info.Missing = checkRequirements(meta)
			}
			if info.Description == "" {
				info.Description = e.Name()
			}
			skills = append(skills, info)
		}
	}

	collect(s.WorkspaceSkills, "workspace")
	if s.BuiltinSkills != "" {
		collect(s.BuiltinSkills, "builtin")
	}
	return skills
}

// LoadSkill loads a skill's content by name. Returns "" if not found.
func (s *SkillsLoader) LoadSkill(name string) string {
	wPath := filepath.Join(s.WorkspaceSkills, name, "SKILL.md")
	if data, err := os.ReadFile(wPath); err == nil {
		return string(data)
	}
	if s.BuiltinSkills != "" {
		bPath := filepath.Join(s.BuiltinSkills, name, "SKILL.md")
		if data, err := os.ReadFile(bPath); err == nil {
			return string(data)
		}
	}
	return ""
}

// LoadSkillsForContext loads and formats specific skills in full, with
// frontmatter stripped.
func (s *SkillsLoader) LoadSkillsForContext(names []string) string {
	var parts []string
	for _, name := range names {
		content := s.LoadSkill(name)
		if content != "" {
			content = stripFrontmatter(content)
			parts = append(parts, "### Skill: "+name+"\n\n"+content)
		}
	}
	return strings.Join(parts, "\n\n---\n\n")
}

// AlwaysSkillNames returns skills flagged always:true in frontmatter.
func (s *SkillsLoader) AlwaysSkillNames() []string {
	var names []string
	for _, sk := range s.ListSkills() {
		if sk.Always && sk.Available {
			names = append(names, sk.Name)
		}
	}
	return names
}

// BuildSkillsSummary returns an XML summary of skills for progressive
// loading, skipping any name in exclude.
func (s *SkillsLoader) BuildSkillsSummary(exclude map[string]bool) string {
	skills := s.ListSkills()

	var lines []string
	for _, sk := range skills {
		if exclude[sk.Name] {
			continue
		}
		avail := "true"
		if !sk.Available {
			avail = "false"
		}
		lines = append(lines, "  <skill available=\""+avail+"\">")
		lines = append(lines, "    <name>"+escapeXML(sk.Name)+"</name>")
		lines = append(lines, "    <description>"+escapeXML(sk.Description)+"</description>")
		lines = append(lines, "    <location>"+sk.Path+"</location>")
		if len(sk.Missing) > 0 {
			lines = append(lines, "    <missing>"+escapeXML(strings.Join(sk.Missing, ", "))+"</missing>")
		}
		lines = append(lines, "  </skill>")
	}
	if len(lines) == 0 {
		return ""
	}
	return "<skills>\n" + strings.Join(lines, "\n") + "\n</skills>"
}

// GetSkillMetadata parses the YAML frontmatter of a skill.
// Returns nil when the skill does not exist or has no frontmatter.
func (s *SkillsLoader) GetSkillMetadata(name string) *SkillMeta {
	content := s.LoadSkill(name)
	raw := frontmatterBlock(content)
	if raw == "" {
		return nil
	}
	var meta SkillMeta
	if err := yaml.Unmarshal([]byte(raw), &meta); err != nil {
		return nil
	}
	return &meta
}

func checkRequirements(meta *SkillMeta) (available bool, missing []string) {
	for _, bin := range meta.Requires.Bins {
		if _, err := exec.LookPath(bin); err != nil {
			missing = append(missing, "bin:"+bin)
		}
	}
	for _, env := range meta.Requires.Env {
		if os.Getenv(env) == "" {
			missing = append(missing, "env:"+env)
		}
	}
	return len(missing) == 0, missing
}

var frontmatterRe = regexp.MustCompile(`(?s)^---\n(.*?)\n---`)

func frontmatterBlock(content string) string {
	if !strings.HasPrefix(content, "---") {
		return ""
	}
	match := frontmatterRe.FindStringSubmatch(content)
	if match == nil {
		return ""
	}
	return match[1]
}

func stripFrontmatter(content string) string {
	if !strings.HasPrefix(content, "---") {
		return content
	}
	re := regexp.MustCompile(`(?s)^---\n.*?\n---\n?`)
	return strings.TrimSpace(re.ReplaceAllString(content, ""))
}

func escapeXML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}
