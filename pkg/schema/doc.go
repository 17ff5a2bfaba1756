// Package schema decodes the declarative application configuration: custom
// roles, the default role, and tables with typed fields and permission rules.
//
// A minimal schema:
//
//	auth:
//	  defaultRole: viewer
//	  roles:
//	    - name: hr-manager
//	      level: 60
//	tables:
//	  - name: employees
//	    organizationScoped: true
//	    fields:
//	      - {name: email, type: email, required: true, unique: true}
//	      - {name: salary, type: decimal}
//	      - {name: owner_id, type: text}
//	    permissions:
//	      read: authenticated
//	      create: {roles: [admin, hr-manager]}
//	      update: {owner: owner_id}
//	      delete: {roles: [admin]}
//	      fields:
//	        - field: salary
//	          read: {roles: [admin, hr-manager]}
//	          write: {roles: [admin]}
//
// Permission rules are a closed set: all, authenticated, roles and owner.
// Anything else fails to load.
package schema
