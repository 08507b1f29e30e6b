package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflow_definitions (
				id UUID PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				first_activity_id UUID,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE TABLE activity_definitions (
				id UUID PRIMARY KEY,
				workflow_definition_id UUID NOT NULL REFERENCES workflow_definitions(id) ON DELETE CASCADE,
				name VARCHAR(255) NOT NULL,
				position INT,
				multiplicity VARCHAR(20) NOT NULL CHECK (multiplicity IN ('single', 'multiple'))
			);

			CREATE INDEX idx_activity_definitions_workflow ON activity_definitions(workflow_definition_id);

			CREATE TABLE transition_definitions (
				id UUID PRIMARY KEY,
				workflow_definition_id UUID NOT NULL REFERENCES workflow_definitions(id) ON DELETE CASCADE,
				from_id UUID NOT NULL REFERENCES activity_definitions(id) ON DELETE CASCADE,
				to_id UUID NOT NULL REFERENCES activity_definitions(id) ON DELETE CASCADE,
				name VARCHAR(255) NOT NULL
			);

			CREATE INDEX idx_transition_definitions_workflow ON transition_definitions(workflow_definition_id);
			CREATE INDEX idx_transition_definitions_from ON transition_definitions(from_id);
			CREATE UNIQUE INDEX idx_transition_definitions_default
				ON transition_definitions(from_id) WHERE name = 'Default';
		`,
		2: `
			CREATE TABLE workflow_instances (
				id UUID PRIMARY KEY,
				workflow_definition_id UUID NOT NULL REFERENCES workflow_definitions(id),
				item_id UUID NOT NULL,
				status VARCHAR(20) NOT NULL CHECK (status IN ('created', 'started', 'paused', 'ended')),
				current_activity_id UUID,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflow_instances_definition ON workflow_instances(workflow_definition_id);
			CREATE INDEX idx_workflow_instances_status ON workflow_instances(status);

			CREATE TABLE activities (
				id UUID PRIMARY KEY,
				activity_definition_id UUID NOT NULL REFERENCES activity_definitions(id),
				workflow_instance_id UUID NOT NULL REFERENCES workflow_instances(id) ON DELETE CASCADE,
				is_auto BOOLEAN NOT NULL DEFAULT FALSE,
				is_valid BOOLEAN NOT NULL DEFAULT FALSE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_activities_instance ON activities(workflow_instance_id);
			CREATE INDEX idx_activities_definition ON activities(activity_definition_id);

			CREATE TABLE decisions (
				id UUID PRIMARY KEY,
				activity_id UUID NOT NULL REFERENCES activities(id) ON DELETE CASCADE,
				username VARCHAR(255) NOT NULL,
				choice VARCHAR(255) NOT NULL,
				comments TEXT,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_decisions_activity ON decisions(activity_id);
		`,
		3: `
			CREATE TABLE rule_definitions (
				id UUID PRIMARY KEY,
				item_id UUID NOT NULL,
				label VARCHAR(255) NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_rule_definitions_item ON rule_definitions(item_id);

			CREATE TABLE condition_definitions (
				id UUID PRIMARY KEY,
				rule_id UUID NOT NULL REFERENCES rule_definitions(id) ON DELETE CASCADE,
				field VARCHAR(255) NOT NULL DEFAULT '',
				operator VARCHAR(20) NOT NULL,
				expression TEXT NOT NULL DEFAULT ''
			);

			CREATE INDEX idx_condition_definitions_rule ON condition_definitions(rule_id);
			CREATE INDEX idx_condition_definitions_criteria
				ON condition_definitions(field, operator, expression);

			CREATE TABLE selector_definitions (
				id UUID PRIMARY KEY,
				item_id UUID NOT NULL,
				account_group_id VARCHAR(255) NOT NULL,
				group_tag VARCHAR(255),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_selector_definitions_item ON selector_definitions(item_id);
			CREATE INDEX idx_selector_definitions_group_tag ON selector_definitions(group_tag);

			CREATE TABLE filter_definitions (
				id UUID PRIMARY KEY,
				selector_id UUID NOT NULL REFERENCES selector_definitions(id) ON DELETE CASCADE,
				field VARCHAR(255) NOT NULL DEFAULT '',
				operator VARCHAR(20) NOT NULL,
				expression TEXT NOT NULL DEFAULT ''
			);

			CREATE INDEX idx_filter_definitions_selector ON filter_definitions(selector_id);
		`,
	}
}
