package selector

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

// Role names a UI element the workflows need to find.
type Role string

const (
	RoleLoginOK       Role = "login_ok"
	RoleAuthIndicator Role = "auth_indicator"

	RoleImageTab             Role = "image_tab"
	RoleVideoTab             Role = "video_tab"
	RoleImageModeMarker      Role = "image_mode_marker"
	RoleVideoModeMarker      Role = "video_mode_marker"
	RoleAnyTab               Role = "any_tab"
	RoleUploadContainer      Role = "upload_container"
	RoleFileInput            Role = "file_input"
	RoleEditorReady          Role = "editor_ready"
	RoleTitleInput           Role = "title_input"
	RoleTextInputFallback    Role = "text_input_fallback"
	RoleContentEditorVisible Role = "content_editor_visible"
	RoleContentEditor        Role = "content_editor"
	RoleContentPlaceholder   Role = "content_placeholder"
	RoleTopicContainer       Role = "topic_container"
	RoleTopicItem            Role = "topic_item"
	RoleSubmitButton         Role = "submit_button"

	RolePublishSuccess      Role = "publish_success"
	RolePublishError        Role = "publish_error"
	RolePublishPage         Role = "publish_page"
	RoleToast               Role = "toast"
	RoleVideoSuccess        Role = "video_success"
	RoleVideoError          Role = "video_error"
	RoleVideoProcessing     Role = "video_processing"
	RoleVideoUploadComplete Role = "video_upload_complete"
	RoleVideoPublishPage    Role = "video_publish_page"

	RoleNoteIDAttribute Role = "note_id_attribute"
	RoleNoteLink        Role = "note_link"

	RoleNoteCard      Role = "note_card"
	RoleDeleteCard    Role = "delete_card"
	RoleDeleteButton  Role = "delete_button"
	RoleMoreOptions   Role = "more_options"
	RoleDropdownMenu  Role = "dropdown_menu"
	RoleConfirmButton Role = "confirm_button"
	RoleModalConfirm  Role = "modal_confirm"

	RoleCommentTrigger Role = "comment_trigger"
	RoleCommentEditor  Role = "comment_editor"
	RoleCommentSubmit  Role = "comment_submit"

	RoleSearchInput  Role = "search_input"
	RoleSearchSubmit Role = "search_submit"
)

// KnownRoles lists every role the workflows look up.
var KnownRoles = []Role{
	RoleLoginOK, RoleAuthIndicator,
	RoleImageTab, RoleVideoTab, RoleImageModeMarker, RoleVideoModeMarker, RoleAnyTab, RoleUploadContainer, RoleFileInput, RoleEditorReady,
	RoleTitleInput, RoleTextInputFallback, RoleContentEditorVisible, RoleContentEditor,
	RoleContentPlaceholder, RoleTopicContainer, RoleTopicItem, RoleSubmitButton,
	RolePublishSuccess, RolePublishError, RolePublishPage, RoleToast,
	RoleVideoSuccess, RoleVideoError, RoleVideoProcessing, RoleVideoUploadComplete, RoleVideoPublishPage,
	RoleNoteIDAttribute, RoleNoteLink,
	RoleNoteCard, RoleDeleteCard, RoleDeleteButton, RoleMoreOptions, RoleDropdownMenu,
	RoleConfirmButton, RoleModalConfirm,
	RoleCommentTrigger, RoleCommentEditor, RoleCommentSubmit,
	RoleSearchInput, RoleSearchSubmit,
}

//go:embed catalog.yaml
var embeddedCatalog []byte

type catalogFile struct {
	Version int                   `yaml:"version"`
	Roles   map[string]Candidates `yaml:"roles"`
}

// Catalog maps roles to candidate lists.
type Catalog struct {
	Version int
	roles   map[Role]Candidates
}

// ParseCatalog decodes a catalog document.
func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse selector catalog: %w", err)
	}
	c := &Catalog{Version: f.Version, roles: make(map[Role]Candidates, len(f.Roles))}
	for name, cands := range f.Roles {
		if len(cands) == 0 {
			return nil, fmt.Errorf("selector catalog: role %q has no candidates", name)
		}
		for i, cand := range cands {
			if strings.TrimSpace(cand) == "" {
				return nil, fmt.Errorf("selector catalog: role %q candidate %d is empty", name, i)
			}
		}
		c.roles[Role(name)] = append(Candidates(nil), cands...)
	}
	return c, nil
}

// Default returns the catalog shipped with the binary.
func Default() (*Catalog, error) {
	c, err := ParseCatalog(embeddedCatalog)
	if err != nil {
		return nil, err
	}
	if missing := c.Missing(KnownRoles); len(missing) > 0 {
		return nil, fmt.Errorf("embedded selector catalog is missing roles: %v", missing)
	}
	return c, nil
}

// Load returns the default catalog with overridePath applied on top. An
// override replaces a role's whole candidate list. An empty path means no
// override.
func Load(overridePath string) (*Catalog, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(overridePath) == "" {
		return c, nil
	}
	path, err := homedir.Expand(overridePath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read selector override %s: %w", path, err)
	}
	override, err := ParseCatalog(data)
	if err != nil {
		return nil, err
	}
	c.Merge(override)
	return c, nil
}

// Merge copies every role of other into c, replacing existing lists.
func (c *Catalog) Merge(other *Catalog) {
	for role, cands := range other.roles {
		c.roles[role] = append(Candidates(nil), cands...)
	}
	if other.Version > c.Version {
		c.Version = other.Version
	}
}

// Get returns a copy of role's candidates, or nil for an unknown role.
func (c *Catalog) Get(role Role) Candidates {
	cands, ok := c.roles[role]
	if !ok {
		return nil
	}
	return append(Candidates(nil), cands...)
}

// Missing returns the roles in want that the catalog does not define.
func (c *Catalog) Missing(want []Role) []Role {
	var missing []Role
	for _, r := range want {
		if _, ok := c.roles[r]; !ok {
			missing = append(missing, r)
		}
	}
	return missing
}

// Roles returns the defined roles in sorted order.
func (c *Catalog) Roles() []Role {
	roles := make([]Role, 0, len(c.roles))
	for r := range c.roles {
		roles = append(roles, r)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}
