// Package suite 以显式的场景树组织端到端场景：分组、前置步骤、跳过与过滤，
// 每个场景独享一个新建的驱动，失败只影响自身。
package suite

// Node 场景树节点；有 action 的叶子是场景，其余是分组
type Node struct {
	name       string
	children   []*Node
	before     []func(*T)
	action     func(*T)
	leaf       bool
	skipReason string
	skipped    bool
}

// Describe 分组
func Describe(name string, children ...*Node) *Node {
	return &Node{name: name, children: children}
}

// It 场景；action 为 nil 时视为待实现，运行时跳过
func It(name string, action func(*T)) *Node {
	return &Node{name: name, action: action, leaf: true}
}

// BeforeEach 在本节点下每个场景开始前执行，外层先于内层
func (n *Node) BeforeEach(fn func(*T)) *Node {
	n.before = append(n.before, fn)
	return n
}

// Skip 跳过本节点及其子节点
func (n *Node) Skip(reason string) *Node {
	n.skipped = true
	n.skipReason = reason
	return n
}

// Name 节点名称
func (n *Node) Name() string { return n.name }

// Children 子节点
func (n *Node) Children() []*Node { return n.children }

// Scenarios 按声明顺序列出所有场景 ID
func (n *Node) Scenarios() []TestID {
	var out []TestID
	n.walk(TestID{}, func(id TestID, _ *Node) { out = append(out, id) })
	return out
}

func (n *Node) walk(parent TestID, fn func(TestID, *Node)) {
	id := parent.child(n.name)
	if n.leaf {
		fn(id, n)
		return
	}
	for _, c := range n.children {
		c.walk(id, fn)
	}
}
