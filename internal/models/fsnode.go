package models

// NodeType distinguishes directories from files in the virtual filesystem.
type NodeType string

const (
	NodeDir  NodeType = "dir"
	NodeFile NodeType = "file"
)

// FsNode is one entry in the virtual filesystem projection. A dir node has
// Children (order-preserving, names unique within a parent); a file node has
// either inline Content or a SourceURL whose content is fetched on demand and
// never written back into the tree.
type FsNode struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Type      NodeType  `json:"type"`
	Children  []*FsNode `json:"children,omitempty"`
	Content   string    `json:"content,omitempty"`
	Mime      string    `json:"mime,omitempty"`
	SourceURL string    `json:"sourceUrl,omitempty"`
}

// IsDir reports whether the node is a directory.
func (n *FsNode) IsDir() bool {
	return n.Type == NodeDir
}

// Child returns the direct child with the given name, or nil.
func (n *FsNode) Child(name string) *FsNode {
	if n == nil || n.Type != NodeDir {
		return nil
	}
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}
