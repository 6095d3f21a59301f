// IBus Platform - Head Unit Service Runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ibusplatform

package platform

import (
	"errors"
	"fmt"
)

var (
	// ErrServiceNotFound is returned by name lookups that match no service.
	ErrServiceNotFound = errors.New("service not found")

	// ErrDuplicateService is returned when two services share a name.
	ErrDuplicateService = errors.New("duplicate service name")
)

// Group is a named, ordered set of services.
type Group struct {
	Name        string
	Description string
	Services    []*Service
}

// ServiceList is the ordered set of groups that make up one service graph.
// Service names are unique across the whole list.
type ServiceList struct {
	groups []Group
	byName map[string]*Service
}

// NewServiceList validates name uniqueness and records each service's group.
func NewServiceList(groups ...Group) (*ServiceList, error) {
	l := &ServiceList{
		groups: make([]Group, 0, len(groups)),
		byName: make(map[string]*Service),
	}

	for _, g := range groups {
		for _, svc := range g.Services {
			if svc == nil {
				return nil, fmt.Errorf("group %s: nil service", g.Name)
			}
			if _, exists := l.byName[svc.Name()]; exists {
				return nil, fmt.Errorf("%w: %s", ErrDuplicateService, svc.Name())
			}
			l.byName[svc.Name()] = svc
			svc.group = g.Name
		}
		services := make([]*Service, len(g.Services))
		copy(services, g.Services)
		l.groups = append(l.groups, Group{Name: g.Name, Description: g.Description, Services: services})
	}

	return l, nil
}

// Groups returns the groups in configured order.
func (l *ServiceList) Groups() []Group {
	return l.groups
}

// All returns every service in start order.
func (l *ServiceList) All() []*Service {
	all := make([]*Service, 0, len(l.byName))
	for _, g := range l.groups {
		all = append(all, g.Services...)
	}
	return all
}

// Find returns the service with the given name.
func (l *ServiceList) Find(name string) (*Service, error) {
	svc, ok := l.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, name)
	}
	return svc, nil
}

// Len returns the number of services.
func (l *ServiceList) Len() int {
	return len(l.byName)
}
