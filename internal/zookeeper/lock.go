// internal/zookeeper/lock.go
package zookeeper

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/go-zookeeper/zk"
)

const lockRoot = "/ecoupon_locks" // 所有分布式锁的根节点

// ErrNotLocked 在未持有锁时调用 Unlock 返回。
var ErrNotLocked = errors.New("zookeeper: no lock to unlock")

// Mutex 是基于临时顺序节点的分布式互斥锁。
// 同一个 key 上的竞争者排队等待，只监听自己的前驱节点，避免惊群。
// 节点是临时的：持有者会话断开后锁自动释放，不存在永久卡死的锁。
type Mutex struct {
	conn     *Conn
	path     string // 锁目录，例如 /ecoupon_locks/lock:coupon:1
	lockNode string // 成功排队后自己创建的节点全路径
}

// NewMutex 创建一个针对 key 的锁实例。实例不可并发复用。
func NewMutex(conn *Conn, key string) *Mutex {
	return &Mutex{
		conn: conn,
		path: lockRoot + "/" + key,
	}
}

// Lock 阻塞直到拿到锁、ctx 结束或 ZooKeeper 出错。
// ctx 取消时会清掉自己的排队节点，不会留下幽灵竞争者。
func (m *Mutex) Lock(ctx context.Context) error {
	if err := m.conn.EnsurePath(lockRoot); err != nil {
		return err
	}
	if err := m.conn.EnsurePath(m.path); err != nil {
		return err
	}

	// 1. 排队：创建临时顺序节点
	nodePath, err := m.conn.CreateProtectedEphemeralSequential(m.path+"/lock-", []byte{}, zk.WorldACL(zk.PermAll))
	if err != nil {
		return fmt.Errorf("failed to create sequential node: %w", err)
	}
	m.lockNode = nodePath

	for {
		// 2. 读出所有竞争者并按序号排序
		children, _, err := m.conn.Children(m.path)
		if err != nil {
			m.abandon()
			return fmt.Errorf("failed to get children nodes: %w", err)
		}
		sortBySequence(children)

		myName := strings.TrimPrefix(m.lockNode, m.path+"/")
		myIndex := -1
		for i, child := range children {
			if child == myName {
				myIndex = i
				break
			}
		}
		if myIndex < 0 {
			// 自己的节点不见了，多半是会话被服务端判死
			m.lockNode = ""
			return errors.New("lock node disappeared, session may have expired")
		}

		// 3. 序号最小即持锁
		if myIndex == 0 {
			return nil
		}

		// 4. 监听前驱节点，等它释放
		prevPath := m.path + "/" + children[myIndex-1]
		exists, _, eventChan, err := m.conn.ExistsW(prevPath)
		if err != nil {
			if err == zk.ErrNoNode {
				continue
			}
			m.abandon()
			return fmt.Errorf("failed to watch previous node: %w", err)
		}
		if !exists {
			// 设置 watch 的瞬间前驱刚好释放了，重新竞争
			continue
		}

		select {
		case <-eventChan:
			// 前驱有变化（通常是删除），重新进入循环竞争
		case <-ctx.Done():
			m.abandon()
			return ctx.Err()
		}
	}
}

// Unlock 释放锁。
func (m *Mutex) Unlock() error {
	if m.lockNode == "" {
		return ErrNotLocked
	}
	err := m.conn.Delete(m.lockNode, -1)
	m.lockNode = ""
	if err != nil && err != zk.ErrNoNode {
		return fmt.Errorf("failed to delete lock node: %w", err)
	}
	return nil
}

// abandon 放弃排队，尽力删除自己的节点。
func (m *Mutex) abandon() {
	if m.lockNode != "" {
		_ = m.conn.Delete(m.lockNode, -1)
		m.lockNode = ""
	}
}

// sortBySequence 按节点尾部的序号排序。
// protected 节点带有 GUID 前缀，直接按字符串排会乱序。
func sortBySequence(children []string) {
	sort.Slice(children, func(i, j int) bool {
		return sequenceOf(children[i]) < sequenceOf(children[j])
	})
}

func sequenceOf(name string) int {
	idx := strings.LastIndex(name, "-")
	if idx < 0 || idx+1 >= len(name) {
		return int(^uint(0) >> 1)
	}
	seq, err := strconv.Atoi(name[idx+1:])
	if err != nil {
		return int(^uint(0) >> 1)
	}
	return seq
}
