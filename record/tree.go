package record

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// Node maps property identifiers to their values. Repeated identifiers in a
// node have all values collected.
type Node map[string][]string

// GameTree is a sequence of nodes followed by variations
type GameTree struct {
	Nodes    []Node
	Children []*GameTree
}

// treeParser holds the state of NewGameTree between runes
type treeParser struct {
	stack      []*GameTree
	node       Node
	ident      strings.Builder
	identDone  string
	value      strings.Builder
	inValue    bool
	escaped    bool
	whitespace bool
}

// NewGameTree parses a collection. The returned root has no nodes, every
// game is one of its children.
//
// Line breaks and tabs inside values become single spaces.
func NewGameTree(text string) (GameTree, error) {
	var root GameTree
	p := treeParser{stack: []*GameTree{&root}}
	for _, r := range text {
		if p.inValue {
			p.valueRune(r)
			continue
		}
		if err := p.controlRune(r); err != nil {
			return GameTree{}, err
		}
	}
	if p.inValue {
		return GameTree{}, fmt.Errorf("missing close bracket")
	}
	if len(p.stack) > 1 {
		return GameTree{}, fmt.Errorf("missing close parenthesis")
	}
	return root, nil
}

func (p *treeParser) valueRune(r rune) {
	switch {
	case p.escaped:
		p.value.WriteRune(r)
		p.escaped = false
		p.whitespace = false
	case r == '\\':
		p.escaped = true
	case r == ']':
		p.node[p.identDone] = append(p.node[p.identDone], p.value.String())
		p.value.Reset()
		p.inValue = false
	case unicode.IsSpace(r):
		if !p.whitespace {
			p.value.WriteRune(' ')
		}
		p.whitespace = true
	default:
		p.value.WriteRune(r)
		p.whitespace = false
	}
}

func (p *treeParser) controlRune(r rune) error {
	top := p.stack[len(p.stack)-1]
	switch {
	case r == '(':
		child := new(GameTree)
		top.Children = append(top.Children, child)
		p.stack = append(p.stack, child)
		p.node = nil
	case r == ')':
		if len(p.stack) == 1 {
			return fmt.Errorf("missing open parenthesis")
		}
		p.stack = p.stack[:len(p.stack)-1]
		p.node = nil
	case r == ';':
		if len(p.stack) == 1 {
			return fmt.Errorf("node outside of a game")
		}
		p.node = make(Node)
		top.Nodes = append(top.Nodes, p.node)
		p.ident.Reset()
		p.identDone = ""
	case r == '[':
		if p.node == nil {
			return fmt.Errorf("value outside of a node")
		}
		// a value right after another keeps the identifier
		if p.ident.Len() > 0 {
			p.identDone = p.ident.String()
			p.ident.Reset()
		}
		if p.identDone == "" {
			return fmt.Errorf("value without identifier")
		}
		p.inValue = true
		p.whitespace = false
	case r == ']':
		return fmt.Errorf("missing open bracket")
	case unicode.IsUpper(r):
		p.ident.WriteRune(r)
	}
	return nil
}

// Games follows every path from a game root to a leaf and parses each as a game
func (gt *GameTree) Games() ([]GameData, error) {
	var games []GameData
	var walk func(t *GameTree, path []Node) error
	walk = func(t *GameTree, path []Node) error {
		path = append(path[:len(path):len(path)], t.Nodes...)
		if len(t.Children) == 0 {
			if len(path) == 0 {
				return nil
			}
			var g GameData
			for _, node := range path {
				for _, id := range sortedIdentifiers(node) {
					for _, v := range node[id] {
						if err := g.AddProperty(id, v); err != nil {
							return err
						}
					}
				}
			}
			if err := g.Finalize(); err != nil {
				return err
			}
			games = append(games, g)
			return nil
		}
		for _, c := range t.Children {
			if err := walk(c, path); err != nil {
				return err
			}
		}
		return nil
	}
	// each child of the root is a separate game
	for _, c := range gt.Children {
		if err := walk(c, gt.Nodes); err != nil {
			return nil, err
		}
	}
	return games, nil
}

// sortedIdentifiers puts AB and AW before B and W
func sortedIdentifiers(n Node) []string {
	ids := make([]string, 0, len(n))
	for id := range n {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (gt GameTree) String() string {
	var sb strings.Builder
	sb.WriteByte('\n')
	for _, node := range gt.Nodes {
		for _, id := range sortedIdentifiers(node) {
			sb.WriteString(id)
			for _, v := range node[id] {
				sb.WriteString("{" + v + "}")
			}
			sb.WriteByte(' ')
		}
		sb.WriteByte('\n')
	}
	for _, c := range gt.Children {
		sb.WriteString(strings.ReplaceAll(c.String(), "\n", "\n  "))
	}
	return sb.String()
}
